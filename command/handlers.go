package command

import (
	"context"

	"github.com/goliatone/go-appinstall/core"
	gocmd "github.com/goliatone/go-command"
)

type InstallService interface {
	BuildInstallURL(ctx context.Context, req core.InstallRequest, session core.SessionStore) (core.InstallResponse, error)
	CompleteInstall(ctx context.Context, params core.CallbackParams) (core.CommitResult, error)
}

type BeginInstallCommand struct {
	service InstallService
}

func NewBeginInstallCommand(service InstallService) *BeginInstallCommand {
	return &BeginInstallCommand{service: service}
}

func (c *BeginInstallCommand) Execute(ctx context.Context, msg BeginInstallMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: install service is required")
	}
	out, err := c.service.BuildInstallURL(ctx, msg.Request, msg.Session)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteInstallCommand struct {
	service InstallService
}

func NewCompleteInstallCommand(service InstallService) *CompleteInstallCommand {
	return &CompleteInstallCommand{service: service}
}

func (c *CompleteInstallCommand) Execute(ctx context.Context, msg CompleteInstallMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: install service is required")
	}
	out, err := c.service.CompleteInstall(ctx, msg.Params)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
