package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const loggerName = "appinstall"

var (
	ErrProviderRequired        = errors.New("core: provider is required")
	ErrCredentialStoreRequired = errors.New("core: credential store is required")
)

// Service runs the install handshake: it builds the install URL, verifies
// the callback signature, exchanges the code and commits the credential.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	secretProvider  SecretProvider
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	provider        Provider
	credentialStore CredentialStore
	clock           func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(loggerName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(loggerName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.provider == nil {
		return nil, mapBuildError(builder.errorMapper, ErrProviderRequired)
	}
	if builder.credentialStore == nil {
		return nil, mapBuildError(builder.errorMapper, ErrCredentialStoreRequired)
	}

	return &Service{
		config:          finalConfig.clone(),
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		secretProvider:  builder.secretProvider,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		provider:        builder.provider,
		credentialStore: builder.credentialStore,
		clock:           builder.clock,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// Config returns a copy of the resolved configuration.
func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config.clone()
}

// BuildInstallURL mints a nonce, records it in the caller's session and
// returns the provider authorization URL bound to that nonce.
func (s *Service) BuildInstallURL(
	ctx context.Context,
	req InstallRequest,
	session SessionStore,
) (response InstallResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": s.providerID(),
		"account":     req.AccountName,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "build_install_url", err, fields)
	}()

	if err = req.Validate(); err != nil {
		err = s.mapError(err)
		return InstallResponse{}, err
	}
	if session == nil {
		err = s.mapError(ErrSessionRequired)
		return InstallResponse{}, err
	}

	nonce := MintNonce(s.clock())
	if setErr := session.Set(ctx, nonce, NoncePlaceholder); setErr != nil {
		err = s.mapError(fmt.Errorf("core: store install nonce: %w", setErr))
		return InstallResponse{}, err
	}
	fields["nonce"] = nonce

	redirectURI := "https://" + strings.TrimSpace(req.Host) + s.config.CallbackPath
	installURL := s.provider.InstallURL(InstallURLInput{
		AccountName: req.AccountName,
		ClientID:    s.config.ClientID,
		Scopes:      append([]string(nil), s.config.Scopes...),
		RedirectURI: redirectURI,
		State:       nonce,
	})

	return InstallResponse{
		URL:         installURL,
		Nonce:       nonce,
		RedirectURI: redirectURI,
	}, nil
}

// Verify reports whether the callback parameters carry a valid signature
// for the configured shared secret. A missing signature is false.
func (s *Service) Verify(ctx context.Context, params CallbackParams) (verified bool) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": s.providerID(),
		"account":     params.Shop(),
	}
	var err error
	defer func() {
		fields["verified"] = verified
		s.observeOperation(ctx, startedAt, "verify_callback", err, fields)
	}()

	if s == nil || s.provider == nil {
		err = ErrProviderRequired
		return false
	}
	verified = s.provider.VerifyCallback(params.Clone(), s.config.ClientSecret)
	if !verified {
		err = ErrCallbackForbidden
	}
	return verified
}

// Exchange trades an authorization code for an access token. Provider
// rejections come back in the response; only transport failures are errors.
func (s *Service) Exchange(ctx context.Context, accountName string, code string) (response ExchangeResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": s.providerID(),
		"account":     accountName,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "exchange_code", err, fields)
	}()

	req := ExchangeRequest{
		AccountName:  accountName,
		Code:         code,
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
	}
	if err = req.Validate(); err != nil {
		err = s.mapError(err)
		return ExchangeResponse{}, err
	}

	response, err = s.provider.ExchangeCode(ctx, req)
	if err != nil {
		err = s.mapExchangeError(err)
		return ExchangeResponse{}, err
	}
	fields["status_code"] = response.StatusCode
	fields["malformed"] = response.Malformed
	return response, nil
}

// Commit stores one Credential when the exchange succeeded with an access
// token. It never checks for existing credentials of the same account.
func (s *Service) Commit(
	ctx context.Context,
	response ExchangeResponse,
	accountName string,
) (result CommitResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": s.providerID(),
		"account":     accountName,
		"status_code": response.StatusCode,
	}
	defer func() {
		fields["outcome"] = string(result.Outcome)
		if result.Reason != "" {
			fields["reason"] = string(result.Reason)
		}
		s.observeOperation(ctx, startedAt, "commit_credential", err, fields)
	}()

	switch {
	case response.Malformed:
		return Failure(FailureMalformedResponse, response.StatusCode), nil
	case response.StatusCode != http.StatusOK:
		return Failure(FailureExchangeRejected, response.StatusCode), nil
	case strings.TrimSpace(response.AccessToken) == "":
		return Failure(FailureMissingAccessToken, response.StatusCode), nil
	}

	input := CreateCredentialInput{
		AccessToken:       response.AccessToken,
		AccountIdentifier: accountName,
		GrantedScopes:     response.Scope,
	}
	if err = input.Validate(); err != nil {
		err = s.mapError(err)
		return CommitResult{}, err
	}
	if s.secretProvider != nil {
		sealed, encryptErr := s.secretProvider.Encrypt(ctx, []byte(input.AccessToken))
		if encryptErr != nil {
			err = s.mapError(fmt.Errorf("core: encrypt access token: %w", encryptErr))
			return CommitResult{}, err
		}
		input.AccessToken = string(sealed)
		input.TokenEncrypted = true
	}

	created, createErr := s.credentialStore.Create(ctx, input)
	if createErr != nil {
		err = s.mapError(createErr)
		return CommitResult{}, err
	}
	created.AccessToken = response.AccessToken
	created.TokenEncrypted = false
	fields["credential_id"] = created.ID
	return Success(created), nil
}

// CompleteInstall handles a provider callback end to end. The state nonce
// is not checked against the session.
func (s *Service) CompleteInstall(ctx context.Context, params CallbackParams) (result CommitResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": s.providerID(),
		"account":     params.Shop(),
	}
	defer func() {
		if result.Outcome != "" {
			fields["outcome"] = string(result.Outcome)
		}
		if result.Reason != "" {
			fields["reason"] = string(result.Reason)
		}
		s.observeOperation(ctx, startedAt, "complete_install", err, fields)
	}()

	if !s.Verify(ctx, params) {
		err = s.mapError(ErrCallbackForbidden)
		return CommitResult{}, err
	}
	if err = params.Validate(); err != nil {
		err = s.mapError(err)
		return CommitResult{}, err
	}

	response, err := s.Exchange(ctx, params.Shop(), params.Code())
	if err != nil {
		return CommitResult{}, err
	}
	result, err = s.Commit(ctx, response, params.Shop())
	if err != nil {
		return CommitResult{}, err
	}
	if !result.Succeeded() {
		s.logWarn(ctx, "install completed without credential", map[string]any{
			"account":     params.Shop(),
			"reason":      string(result.Reason),
			"status_code": result.StatusCode,
		})
	}
	return result, nil
}

// ListCredentials returns stored credentials, decrypting tokens when a
// secret provider is configured.
func (s *Service) ListCredentials(ctx context.Context, filter CredentialFilter) (credentials []Credential, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account": filter.AccountIdentifier,
	}
	defer func() {
		fields["count"] = len(credentials)
		s.observeOperation(ctx, startedAt, "list_credentials", err, fields)
	}()

	if s == nil || s.credentialStore == nil {
		err = ErrCredentialStoreRequired
		return nil, err
	}
	records, err := s.credentialStore.List(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	credentials = make([]Credential, 0, len(records))
	for _, record := range records {
		if record.TokenEncrypted && s.secretProvider != nil {
			plain, decryptErr := s.secretProvider.Decrypt(ctx, []byte(record.AccessToken))
			if decryptErr != nil {
				err = s.mapError(fmt.Errorf("core: decrypt access token: %w", decryptErr))
				return nil, err
			}
			record.AccessToken = string(plain)
			record.TokenEncrypted = false
		}
		credentials = append(credentials, record)
	}
	return credentials, nil
}

func (s *Service) providerID() string {
	if s == nil || s.provider == nil {
		return ""
	}
	return s.provider.ID()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) mapExchangeError(err error) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureInstallErrorEnvelope(richErr)
	}
	return ensureInstallErrorEnvelope(
		goerrors.Wrap(err, goerrors.CategoryExternal, "token exchange request failed").
			WithTextCode(InstallErrorExchangeFailed),
	)
}
