package command

import (
	"strings"

	"github.com/goliatone/go-appinstall/core"
)

const (
	TypeBeginInstall    = "appinstall.command.install.begin"
	TypeCompleteInstall = "appinstall.command.install.complete"
)

// BeginInstallMessage asks for an install URL bound to a fresh nonce in
// Session.
type BeginInstallMessage struct {
	Request core.InstallRequest
	Session core.SessionStore
}

func (BeginInstallMessage) Type() string { return TypeBeginInstall }

func (m BeginInstallMessage) Validate() error {
	if strings.TrimSpace(m.Request.AccountName) == "" {
		return commandValidationError("account_name", "account name is required")
	}
	if strings.TrimSpace(m.Request.Host) == "" {
		return commandValidationError("host", "host is required")
	}
	if m.Session == nil {
		return commandValidationError("session", "session store is required")
	}
	return nil
}

// CompleteInstallMessage carries the raw callback parameters. Field level
// checks are left to the service so that signature failures win over
// missing fields.
type CompleteInstallMessage struct {
	Params core.CallbackParams `json:"params"`
}

func (CompleteInstallMessage) Type() string { return TypeCompleteInstall }

func (m CompleteInstallMessage) Validate() error {
	if len(m.Params.Values) == 0 {
		return commandValidationError("params", "callback parameters are required")
	}
	return nil
}
