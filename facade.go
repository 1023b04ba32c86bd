package appinstall

import (
	"fmt"

	"github.com/goliatone/go-appinstall/adapters/gocommand"
	installcommand "github.com/goliatone/go-appinstall/command"
	installquery "github.com/goliatone/go-appinstall/query"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

const queueResolverKey = "queue"

type CommandQueryService interface {
	installcommand.InstallService
	installquery.CredentialReader
}

type Commands struct {
	BeginInstall    *installcommand.BeginInstallCommand
	CompleteInstall *installcommand.CompleteInstallCommand
}

type Queries struct {
	ListCredentials *installquery.ListCredentialsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("appinstall: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			BeginInstall:    installcommand.NewBeginInstallCommand(service),
			CompleteInstall: installcommand.NewCompleteInstallCommand(service),
		},
		queries: Queries{
			ListCredentials: installquery.NewListCredentialsQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

type RegisterOption func(*registerOptions)

type registerOptions struct {
	queueRegistry *jobqueuecommand.Registry
	runnerOpts    []runner.Option
}

// WithQueueRegistry mirrors the install commands into a go-job queue
// registry when the adapter is initialized.
func WithQueueRegistry(registry *jobqueuecommand.Registry) RegisterOption {
	return func(options *registerOptions) {
		options.queueRegistry = registry
	}
}

func WithRunnerOptions(opts ...runner.Option) RegisterOption {
	return func(options *registerOptions) {
		options.runnerOpts = append(options.runnerOpts, opts...)
	}
}

// Register subscribes the facade handlers on the dispatcher and records them
// in the adapter registry. Callers still own adapter.Initialize.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter, opts ...RegisterOption) (gocommand.InstallSubscriptions, error) {
	if f == nil || f.service == nil {
		return nil, fmt.Errorf("appinstall: facade is not configured")
	}
	if adapter == nil {
		return nil, fmt.Errorf("appinstall: command registry adapter is required")
	}
	cfg := registerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.queueRegistry != nil && !adapter.HasResolver(queueResolverKey) {
		if err := adapter.AddQueueResolver(queueResolverKey, cfg.queueRegistry); err != nil {
			return nil, err
		}
	}
	return gocommand.RegisterInstallHandlers(adapter, f.service, f.service, cfg.runnerOpts...)
}
