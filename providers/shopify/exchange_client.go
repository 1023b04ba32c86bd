package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-appinstall/core"
)

const (
	defaultExchangeRequestTimeout = 30 * time.Second
	maxExchangeResponseBodyBytes  = 1 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ExchangeClientConfig struct {
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
	BuildTokenURL       func(shopDomain string) (string, error)
}

// ExchangeClient posts authorization codes to the shop token endpoint. It
// makes a single attempt per call.
type ExchangeClient struct {
	config     ExchangeClientConfig
	httpClient HTTPDoer
}

func NewExchangeClient(cfg ExchangeClientConfig) *ExchangeClient {
	timeout := cfg.TokenRequestTimeout
	if timeout <= 0 {
		timeout = defaultExchangeRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	builder := cfg.BuildTokenURL
	if builder == nil {
		builder = TokenURL
	}
	return &ExchangeClient{
		config: ExchangeClientConfig{
			TokenRequestTimeout: timeout,
			BuildTokenURL:       builder,
		},
		httpClient: httpClient,
	}
}

func (c *ExchangeClient) Exchange(ctx context.Context, req core.ExchangeRequest) (core.ExchangeResponse, error) {
	if c == nil || c.httpClient == nil {
		return core.ExchangeResponse{}, &ExchangeError{
			Message: "http client is not configured",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	clientID := strings.TrimSpace(req.ClientID)
	clientSecret := strings.TrimSpace(req.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return core.ExchangeResponse{}, &ExchangeError{
			Message: "client id and client secret are required",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.ExchangeResponse{}, &ExchangeError{
			Message: "authorization code is required",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	tokenURL, err := c.config.BuildTokenURL(req.AccountName)
	if err != nil {
		return core.ExchangeResponse{}, &ExchangeError{
			Message: "resolve token url",
			Cause:   err,
		}
	}

	values := url.Values{}
	values.Set("client_id", clientID)
	values.Set("client_secret", clientSecret)
	values.Set("code", code)

	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if c.config.TokenRequestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, c.config.TokenRequestTimeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		tokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return core.ExchangeResponse{}, &ExchangeError{
			Message: "build exchange request",
			Cause:   err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.ExchangeResponse{}, &ExchangeError{
			Message: "exchange request failed",
			Cause:   err,
		}
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxExchangeResponseBodyBytes+1))
	if readErr != nil {
		return core.ExchangeResponse{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    "read exchange response",
			Cause:      readErr,
		}
	}

	out := core.ExchangeResponse{
		StatusCode: response.StatusCode,
		Fields:     map[string]any{},
	}
	if int64(len(body)) > maxExchangeResponseBodyBytes {
		out.Malformed = true
		return out, nil
	}

	payload := map[string]any{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			out.Malformed = true
			return out, nil
		}
	}
	out.AccessToken = readAnyString(payload["access_token"])
	out.Scope = readAnyString(payload["scope"])
	out.Fields = sanitizeExchangeFields(payload)
	return out, nil
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func sanitizeExchangeFields(payload map[string]any) map[string]any {
	fields := make(map[string]any, len(payload))
	for key, value := range payload {
		fields[key] = value
	}
	delete(fields, "access_token")
	delete(fields, "refresh_token")
	delete(fields, "id_token")
	return fields
}
