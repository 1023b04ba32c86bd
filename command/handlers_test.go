package command

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/goliatone/go-appinstall/core"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type stubInstallService struct {
	buildFn    func(context.Context, core.InstallRequest, core.SessionStore) (core.InstallResponse, error)
	completeFn func(context.Context, core.CallbackParams) (core.CommitResult, error)
}

func (s stubInstallService) BuildInstallURL(
	ctx context.Context,
	req core.InstallRequest,
	session core.SessionStore,
) (core.InstallResponse, error) {
	return s.buildFn(ctx, req, session)
}

func (s stubInstallService) CompleteInstall(ctx context.Context, params core.CallbackParams) (core.CommitResult, error) {
	return s.completeFn(ctx, params)
}

func TestBeginInstallCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	session := core.NewMemorySessionStore()
	expected := core.InstallResponse{URL: "https://acme.myshopify.com/admin/oauth/authorize", Nonce: "1700000000"}
	svc := stubInstallService{
		buildFn: func(_ context.Context, req core.InstallRequest, got core.SessionStore) (core.InstallResponse, error) {
			if req.AccountName != "acme" || req.Host != "app.example.com" {
				t.Fatalf("unexpected request %#v", req)
			}
			if got != session {
				t.Fatalf("expected session to be passed through")
			}
			return expected, nil
		},
	}

	collector := gocmd.NewResult[core.InstallResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewBeginInstallCommand(svc).Execute(ctx, BeginInstallMessage{
		Request: core.InstallRequest{AccountName: "acme", Host: "app.example.com"},
		Session: session,
	})
	if err != nil {
		t.Fatalf("execute begin install: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.URL != expected.URL || result.Nonce != expected.Nonce {
		t.Fatalf("unexpected stored result %#v (stored=%v)", result, ok)
	}
}

func TestCompleteInstallCommand_StoresTypedResult(t *testing.T) {
	svc := stubInstallService{
		completeFn: func(_ context.Context, params core.CallbackParams) (core.CommitResult, error) {
			if params.Shop() != "acme" {
				t.Fatalf("expected shop acme, got %q", params.Shop())
			}
			return core.Failure(core.FailureExchangeRejected, http.StatusBadRequest), nil
		},
	}

	collector := gocmd.NewResult[core.CommitResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewCompleteInstallCommand(svc).Execute(ctx, CompleteInstallMessage{
		Params: core.CallbackParams{Values: map[string]string{"shop": "acme", "hmac": "x"}},
	})
	if err != nil {
		t.Fatalf("execute complete install: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Reason != core.FailureExchangeRejected {
		t.Fatalf("unexpected stored result %#v", result)
	}
}

func TestCompleteInstallCommand_PropagatesServiceError(t *testing.T) {
	forbidden := core.MapError(core.ErrCallbackForbidden)
	svc := stubInstallService{
		completeFn: func(context.Context, core.CallbackParams) (core.CommitResult, error) {
			return core.CommitResult{}, forbidden
		},
	}
	err := NewCompleteInstallCommand(svc).Execute(context.Background(), CompleteInstallMessage{
		Params: core.CallbackParams{Values: map[string]string{"shop": "acme"}},
	})
	if !errors.Is(err, forbidden) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestBeginInstallMessage_ValidateReturnsRichError(t *testing.T) {
	err := (BeginInstallMessage{Request: core.InstallRequest{Host: "h"}}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.InstallErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.InstallErrorBadInput, rich.TextCode)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "account_name" {
		t.Fatalf("expected account_name validation field, got %#v", validation)
	}

	if err := (BeginInstallMessage{Request: core.InstallRequest{AccountName: "acme", Host: "h"}}).Validate(); err == nil {
		t.Fatalf("expected missing session to fail")
	}
}

func TestCompleteInstallMessage_Validate(t *testing.T) {
	if err := (CompleteInstallMessage{}).Validate(); err == nil {
		t.Fatalf("expected empty params to fail")
	}
	msg := CompleteInstallMessage{Params: core.CallbackParams{Values: map[string]string{"state": "1"}}}
	if err := msg.Validate(); err != nil {
		t.Fatalf("expected non-empty params to pass, got %v", err)
	}
}

func TestInstallCommands_NilServiceReturnsRichError(t *testing.T) {
	var begin *BeginInstallCommand
	err := begin.Execute(context.Background(), BeginInstallMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}

	err = NewCompleteInstallCommand(nil).Execute(context.Background(), CompleteInstallMessage{})
	if !goerrors.As(err, &rich) || rich.TextCode != core.InstallErrorInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
}
