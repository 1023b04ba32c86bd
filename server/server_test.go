package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-appinstall/core"
	"github.com/goliatone/go-appinstall/metrics"
	"github.com/goliatone/go-appinstall/providers/shopify"
	"github.com/goliatone/go-appinstall/session"
	"github.com/prometheus/client_golang/prometheus"
)

const testSecret = "hush"

type memoryCredentialStore struct {
	mu      sync.Mutex
	records []core.Credential
}

func (s *memoryCredentialStore) Create(_ context.Context, in core.CreateCredentialInput) (core.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := core.Credential{
		ID:                fmt.Sprintf("cred_%d", len(s.records)+1),
		AccessToken:       in.AccessToken,
		AccountIdentifier: in.AccountIdentifier,
		GrantedScopes:     in.GrantedScopes,
		CreatedAt:         time.Now().UTC(),
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *memoryCredentialStore) List(context.Context, core.CredentialFilter) ([]core.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Credential(nil), s.records...), nil
}

func (s *memoryCredentialStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fixture struct {
	server  *Server
	store   *memoryCredentialStore
	backend *session.MemoryBackend
}

func newFixture(t *testing.T, tokenHandler http.HandlerFunc, mutate func(*core.Config), opts ...Option) fixture {
	t.Helper()
	tokenServer := httptest.NewServer(tokenHandler)
	t.Cleanup(tokenServer.Close)

	provider, err := shopify.New(shopify.Config{TokenURL: tokenServer.URL, RequestTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	cfg := core.DefaultConfig()
	cfg.ClientID = "client_1"
	cfg.ClientSecret = testSecret
	if mutate != nil {
		mutate(&cfg)
	}
	recorder, err := metrics.NewRecorder(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new metrics recorder: %v", err)
	}
	store := &memoryCredentialStore{}
	svc, err := core.NewService(cfg,
		core.WithProvider(provider),
		core.WithCredentialStore(store),
		core.WithMetricsRecorder(recorder),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	backend := session.NewMemoryBackend(time.Hour)
	sessions, err := session.NewManager(backend, cfg.Session)
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	srv, err := New(svc, sessions, append([]Option{WithMetrics(recorder)}, opts...)...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return fixture{server: srv, store: store, backend: backend}
}

func tokenOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "T", "scope": "read_x"})
}

func signedCallback(values url.Values) string {
	params := map[string]string{}
	for key := range values {
		params[key] = values.Get(key)
	}
	values.Set("hmac", shopify.Sign(shopify.Canonicalize(params), testSecret))
	return "/auth?" + values.Encode()
}

func callbackValues() url.Values {
	return url.Values{
		"shop":      {"acme"},
		"code":      {"0907a61c0c8d55e99db179b68161bc00"},
		"state":     {"1700000000"},
		"timestamp": {"1337178173"},
	}
}

func serve(f fixture, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestInstallPage_RendersLinkAndStoresNonce(t *testing.T) {
	f := newFixture(t, tokenOK, nil)

	req := httptest.NewRequest(http.MethodGet, "/install?shop=acme", nil)
	req.Host = "app.example.com"
	rec := serve(f, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "https://acme.myshopify.com/admin/oauth/authorize?client_id=client_1") {
		t.Fatalf("expected install link in page, got:\n%s", body)
	}
	if !strings.Contains(body, "redirect_uri=https://app.example.com/auth") {
		t.Fatalf("expected redirect uri in page, got:\n%s", body)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatalf("expected session cookie")
	}
	if f.backend.Len() != 1 {
		t.Fatalf("expected one stored session, got %d", f.backend.Len())
	}
}

func TestInstallPage_FallsBackToDefaultShop(t *testing.T) {
	f := newFixture(t, tokenOK, func(cfg *core.Config) { cfg.DefaultShop = "fallback-shop" })
	rec := serve(f, httptest.NewRequest(http.MethodGet, "/install", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "https://fallback-shop.myshopify.com/") {
		t.Fatalf("expected default shop link, got:\n%s", rec.Body.String())
	}
}

func TestInstallPage_MissingShopIsBadRequest(t *testing.T) {
	f := newFixture(t, tokenOK, nil)
	rec := serve(f, httptest.NewRequest(http.MethodGet, "/install", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCallback_ForbiddenOnBadSignature(t *testing.T) {
	var tokenCalls int
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		tokenOK(w, r)
	}, nil)

	values := callbackValues()
	values.Set("hmac", strings.Repeat("0", 64))
	rec := serve(f, httptest.NewRequest(http.MethodGet, "/auth?"+values.Encode(), nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if tokenCalls != 0 || f.store.count() != 0 {
		t.Fatalf("expected no exchange and no credential, got calls=%d rows=%d", tokenCalls, f.store.count())
	}

	rec = serve(f, httptest.NewRequest(http.MethodGet, "/auth?shop=acme&code=x", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without hmac, got %d", rec.Code)
	}
}

func TestCallback_ExchangesAndCommits(t *testing.T) {
	var form url.Values
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		tokenOK(w, r)
	}, nil)

	rec := serve(f, httptest.NewRequest(http.MethodGet, signedCallback(callbackValues()), nil))
	if rec.Code != http.StatusOK || rec.Body.String() != SuccessBody {
		t.Fatalf("expected 200 %s, got %d %q", SuccessBody, rec.Code, rec.Body.String())
	}
	if form.Get("client_id") != "client_1" || form.Get("client_secret") != testSecret {
		t.Fatalf("expected client credentials in exchange form, got %v", form)
	}
	if form.Get("code") != "0907a61c0c8d55e99db179b68161bc00" {
		t.Fatalf("expected code in exchange form, got %v", form)
	}
	records, _ := f.store.List(context.Background(), core.CredentialFilter{})
	if len(records) != 1 || records[0].AccessToken != "T" || records[0].AccountIdentifier != "acme" {
		t.Fatalf("unexpected credentials %#v", records)
	}
}

func TestCallback_SilentFailureStillOkay(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
	}, nil)

	rec := serve(f, httptest.NewRequest(http.MethodGet, signedCallback(callbackValues()), nil))
	if rec.Code != http.StatusOK || rec.Body.String() != SuccessBody {
		t.Fatalf("expected 200 %s, got %d %q", SuccessBody, rec.Code, rec.Body.String())
	}
	if f.store.count() != 0 {
		t.Fatalf("expected no credential")
	}
}

func TestCallback_StrictCommitSurfacesFailure(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"scope":"read_x"}`))
	}, func(cfg *core.Config) { cfg.StrictCommit = true })

	rec := serve(f, httptest.NewRequest(http.MethodGet, signedCallback(callbackValues()), nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(core.FailureMissingAccessToken)) {
		t.Fatalf("expected failure reason in body, got %q", rec.Body.String())
	}
}

// A signed callback without a code is rejected at the boundary with 400
// instead of exchanging an empty code and answering OKAY. 403 stays
// reserved for signature failures.
func TestCallback_ValidSignatureWithoutCodeIsBadRequest(t *testing.T) {
	var tokenCalls int
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		tokenOK(w, r)
	}, nil)
	values := callbackValues()
	values.Del("code")
	rec := serve(f, httptest.NewRequest(http.MethodGet, signedCallback(values), nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec.Body.String() == SuccessBody {
		t.Fatalf("expected no %s body for a callback without code", SuccessBody)
	}
	if tokenCalls != 0 || f.store.count() != 0 {
		t.Fatalf("expected no exchange and no credential, got calls=%d rows=%d", tokenCalls, f.store.count())
	}
}

func TestCallback_TransportFailureIsBadGateway(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		hijacker, ok := w.(http.Hijacker)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		conn, _, _ := hijacker.Hijack()
		_ = conn.Close()
	}, nil)

	rec := serve(f, httptest.NewRequest(http.MethodGet, signedCallback(callbackValues()), nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

type stubCompletionQueue struct {
	mu     sync.Mutex
	queued []core.CallbackParams
	err    error
}

func (q *stubCompletionQueue) EnqueueCompleteInstall(_ context.Context, params core.CallbackParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.queued = append(q.queued, params)
	return nil
}

func (q *stubCompletionQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

func TestCallback_QueuedCompletion(t *testing.T) {
	var exchanges int
	tokenCounting := func(w http.ResponseWriter, r *http.Request) {
		exchanges++
		tokenOK(w, r)
	}
	queue := &stubCompletionQueue{}
	f := newFixture(t, tokenCounting, nil, WithCompletionQueue(queue))

	bad := callbackValues()
	bad.Set("hmac", "deadbeef")
	if rec := serve(f, httptest.NewRequest(http.MethodGet, "/auth?"+bad.Encode(), nil)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad signature, got %d", rec.Code)
	}
	missingCode := callbackValues()
	missingCode.Del("code")
	if rec := serve(f, httptest.NewRequest(http.MethodGet, signedCallback(missingCode), nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing code, got %d", rec.Code)
	}
	if queue.count() != 0 {
		t.Fatalf("expected rejected callbacks to stay off the queue")
	}

	rec := serve(f, httptest.NewRequest(http.MethodGet, signedCallback(callbackValues()), nil))
	if rec.Code != http.StatusOK || rec.Body.String() != SuccessBody {
		t.Fatalf("expected 200 %s, got %d %q", SuccessBody, rec.Code, rec.Body.String())
	}
	if queue.count() != 1 || queue.queued[0].Code() != "0907a61c0c8d55e99db179b68161bc00" {
		t.Fatalf("expected callback queued, got %#v", queue.queued)
	}
	if queue.queued[0].Get("hmac") == "" {
		t.Fatalf("expected signature kept for the worker to re-verify")
	}
	if exchanges != 0 || f.store.count() != 0 {
		t.Fatalf("expected exchange and commit deferred to the worker, got %d exchanges %d credentials", exchanges, f.store.count())
	}
}

func TestCallback_QueueFailureIsServerError(t *testing.T) {
	f := newFixture(t, tokenOK, nil, WithCompletionQueue(&stubCompletionQueue{err: fmt.Errorf("redis down")}))
	rec := serve(f, httptest.NewRequest(http.MethodGet, signedCallback(callbackValues()), nil))
	if rec.Code < http.StatusInternalServerError {
		t.Fatalf("expected 5xx when the queue is down, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), SuccessBody) {
		t.Fatalf("expected no %s body on queue failure", SuccessBody)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, tokenOK, nil)

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}

	serve(f, httptest.NewRequest(http.MethodGet, signedCallback(callbackValues()), nil))
	rec = serve(f, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "appinstall_operations_total") {
		t.Fatalf("expected operation counters, got:\n%s", body)
	}
	if !strings.Contains(body, `operation="complete_install"`) || !strings.Contains(body, `outcome="success"`) {
		t.Fatalf("expected complete_install success series, got:\n%s", body)
	}
	if !strings.Contains(body, `route="/auth"`) {
		t.Fatalf("expected route label for callback, got:\n%s", body)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatalf("expected missing installer to fail")
	}
}
