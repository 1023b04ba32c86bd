package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	testClientID     = "client_1"
	testClientSecret = "hush"
)

type stubProvider struct {
	mu            sync.Mutex
	verifyResult  bool
	verifyCalls   int
	lastSecret    string
	exchangeCalls int
	exchangeReqs  []ExchangeRequest
	responses     []ExchangeResponse
	exchangeErr   error
}

func (p *stubProvider) ID() string { return "stub" }

func (p *stubProvider) InstallURL(in InstallURLInput) string {
	return fmt.Sprintf(
		"https://%s.example.test/authorize?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		in.AccountName,
		in.ClientID,
		strings.Join(in.Scopes, ","),
		in.RedirectURI,
		in.State,
	)
}

func (p *stubProvider) VerifyCallback(params map[string]string, secret string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifyCalls++
	p.lastSecret = secret
	if _, ok := params["hmac"]; !ok {
		return false
	}
	return p.verifyResult
}

func (p *stubProvider) ExchangeCode(_ context.Context, req ExchangeRequest) (ExchangeResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeCalls++
	p.exchangeReqs = append(p.exchangeReqs, req)
	if p.exchangeErr != nil {
		return ExchangeResponse{}, p.exchangeErr
	}
	if len(p.responses) == 0 {
		return ExchangeResponse{StatusCode: 200, AccessToken: "token", Scope: "read_x"}, nil
	}
	next := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return next, nil
}

type memoryCredentialStore struct {
	mu      sync.Mutex
	records []Credential
	err     error
}

func (s *memoryCredentialStore) Create(_ context.Context, in CreateCredentialInput) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Credential{}, s.err
	}
	record := Credential{
		ID:                fmt.Sprintf("cred_%d", len(s.records)+1),
		AccessToken:       in.AccessToken,
		AccountIdentifier: in.AccountIdentifier,
		GrantedScopes:     in.GrantedScopes,
		TokenEncrypted:    in.TokenEncrypted,
		CreatedAt:         time.Now().UTC(),
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *memoryCredentialStore) List(_ context.Context, filter CredentialFilter) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Credential, 0, len(s.records))
	for _, record := range s.records {
		if filter.AccountIdentifier != "" && record.AccountIdentifier != filter.AccountIdentifier {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *memoryCredentialStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type reversingSecretProvider struct{}

func (reversingSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return append([]byte("enc:"), reverse(plaintext)...), nil
}

func (reversingSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if !strings.HasPrefix(string(ciphertext), "enc:") {
		return nil, errors.New("not sealed")
	}
	return reverse(ciphertext[len("enc:"):]), nil
}

func reverse(in []byte) []byte {
	out := make([]byte, len(in))
	for i := range in {
		out[len(in)-1-i] = in[i]
	}
	return out
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
	tags     map[string]map[string]string
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
		m.tags = map[string]map[string]string{}
	}
	m.counters[name] += value
	m.tags[name] = tags
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ClientID = testClientID
	cfg.ClientSecret = testClientSecret
	return cfg
}

func newTestService(t *testing.T, provider *stubProvider, store *memoryCredentialStore, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithProvider(provider),
		WithCredentialStore(store),
		WithClock(func() time.Time { return time.Unix(1700000000, 0).UTC() }),
	}
	svc, err := NewService(testConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func signedParams(extra map[string]string) CallbackParams {
	values := map[string]string{
		"hmac":      "signature",
		"shop":      "acme",
		"code":      "code_1",
		"state":     "1700000000",
		"timestamp": "1337178173",
	}
	for key, value := range extra {
		values[key] = value
	}
	return CallbackParams{Values: values}
}
