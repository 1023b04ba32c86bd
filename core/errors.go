package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	InstallErrorBadInput       = "INSTALL_BAD_INPUT"
	InstallErrorForbidden      = "INSTALL_FORBIDDEN"
	InstallErrorExchangeFailed = "INSTALL_EXCHANGE_FAILED"
	InstallErrorStoreFailed    = "INSTALL_STORE_FAILED"
	InstallErrorConfigInvalid  = "INSTALL_CONFIG_INVALID"
	InstallErrorInternal       = "INSTALL_INTERNAL_ERROR"
)

func installErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureInstallErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrCallbackForbidden):
		return newInstallError(err.Error(), goerrors.CategoryAuthz, InstallErrorForbidden)
	case errors.Is(err, ErrAccountNameRequired),
		errors.Is(err, ErrHostRequired),
		errors.Is(err, ErrCodeRequired),
		errors.Is(err, ErrShopRequired):
		return newInstallError(err.Error(), goerrors.CategoryBadInput, InstallErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "token exchange"), strings.Contains(msg, "exchange request"):
		return newInstallError(err.Error(), goerrors.CategoryExternal, InstallErrorExchangeFailed)
	case strings.Contains(msg, "sqlstore"), strings.Contains(msg, "credential store"):
		return newInstallError(err.Error(), goerrors.CategoryInternal, InstallErrorStoreFailed)
	case strings.Contains(msg, "client_id"), strings.Contains(msg, "client_secret"),
		strings.Contains(msg, "service_name"), strings.Contains(msg, "callback_path"):
		return newInstallError(err.Error(), goerrors.CategoryValidation, InstallErrorConfigInvalid)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "exceeds"):
		return newInstallError(err.Error(), goerrors.CategoryBadInput, InstallErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureInstallErrorEnvelope(mapped)
}

func newInstallError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureInstallErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureInstallErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = InstallHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultInstallTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultInstallTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return InstallErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return InstallErrorForbidden
	case goerrors.CategoryExternal:
		return InstallErrorExchangeFailed
	default:
		return InstallErrorInternal
	}
}

// InstallHTTPStatus maps an error category to the status the callback
// handler writes.
func InstallHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError exposes the default mapper to transport adapters.
func MapError(err error) *goerrors.Error {
	return installErrorMapper(err)
}
