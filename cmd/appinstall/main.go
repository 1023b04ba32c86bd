package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-appinstall/adapters/gocommand"
	"github.com/goliatone/go-appinstall/core"
	"github.com/goliatone/go-appinstall/providers/shopify"
	installquery "github.com/goliatone/go-appinstall/query"
	"github.com/goliatone/go-appinstall/server"
	"github.com/spf13/cobra"
)

const defaultShutdownTimeout = 10 * time.Second

type globalFlags struct {
	configPath  string
	secretsPath string
	logLevel    string
	logFormat   string
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout io.Writer, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{
		configPath: os.Getenv("APPINSTALL_CONFIG"),
		logLevel:   envOr("APPINSTALL_LOG_LEVEL", "info"),
		logFormat:  envOr("APPINSTALL_LOG_FORMAT", "text"),
	}

	root := &cobra.Command{
		Use:          "appinstall",
		Short:        "Storefront app install handshake service",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&flags.configPath, "config", flags.configPath, "TOML config file (env APPINSTALL_CONFIG)")
	root.PersistentFlags().StringVar(&flags.secretsPath, "secrets", "", "dotenv secrets file, overrides secrets.path")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", flags.logLevel, "trace|debug|info|warn|error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", flags.logFormat, "text|json")

	root.AddCommand(
		newServeCommand(flags, stderr),
		newMigrateCommand(flags, stderr),
		newInstallURLCommand(flags),
		newVerifyCommand(flags),
		newCredentialsCommand(flags, stderr),
	)
	return root
}

func (f *globalFlags) load(stderr io.Writer) (fileConfig, *slogLogger, error) {
	logger := newLogger(stderr, f.logLevel, f.logFormat)
	file, undecoded, err := loadFileConfig(f.configPath)
	if err != nil {
		return fileConfig{}, nil, err
	}
	if len(undecoded) > 0 {
		logger.Warn("config file contains undecoded keys", "path", f.configPath, "keys", undecoded)
	}
	return file, logger, nil
}

// serviceConfig resolves only the service settings and secrets, for
// commands that never touch the database.
func (f *globalFlags) serviceConfig(ctx context.Context) (core.Config, error) {
	file, _, err := loadFileConfig(f.configPath)
	if err != nil {
		return core.Config{}, err
	}
	secrets, err := loadSecrets(file, f.secretsPath)
	if err != nil {
		return core.Config{}, err
	}
	return resolveConfig(ctx, file, secrets)
}

func newServeCommand(flags *globalFlags, stderr io.Writer) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the install page and provider callback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, logger, err := flags.load(stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, file, logger, runtimeOptions{
				secretsPath: flags.secretsPath,
				migrate:     migrate,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			srv, err := server.New(rt.service, rt.sessions, rt.serverOptions()...)
			if err != nil {
				return err
			}
			if err := rt.startCompletionWorker(ctx); err != nil {
				return err
			}
			logger.Info("appinstall starting",
				"addr", file.Server.Addr,
				"callback_path", rt.config.CallbackPath,
				"database", file.Database.Driver,
				"session_backend", file.Session.Backend,
				"jobs", file.Jobs.Enabled,
			)
			return srv.ListenAndServe(ctx, file.Server.Addr, durationOr(file.Server.ShutdownTimeout, defaultShutdownTimeout))
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

func newMigrateCommand(flags *globalFlags, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the credential schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, logger, err := flags.load(stderr)
			if err != nil {
				return err
			}
			if err := file.validate(); err != nil {
				return err
			}
			client, err := openPersistence(cmd.Context(), file.Database)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", "driver", file.Database.Driver)
			return nil
		},
	}
}

func newInstallURLCommand(flags *globalFlags) *cobra.Command {
	var shop, host string
	cmd := &cobra.Command{
		Use:   "install-url",
		Short: "Print the authorization URL for a shop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.serviceConfig(cmd.Context())
			if err != nil {
				return err
			}
			account := strings.TrimSpace(shop)
			if account == "" {
				account = cfg.DefaultShop
			}
			req := core.InstallRequest{AccountName: account, Host: host}
			if err := req.Validate(); err != nil {
				return err
			}
			nonce := core.MintNonce(time.Now())
			redirectURI := "https://" + strings.TrimSpace(host) + cfg.CallbackPath
			fmt.Fprintln(cmd.OutOrStdout(), shopify.BuildInstallURL(account, cfg.ClientID, cfg.Scopes, redirectURI, nonce))
			return nil
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "", "shop name, defaults to service.default_shop")
	cmd.Flags().StringVar(&host, "host", "", "public host the callback is served on")
	return cmd
}

func newVerifyCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <callback-query>",
		Short: "Check the signature of a callback query string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.serviceConfig(cmd.Context())
			if err != nil {
				return err
			}
			raw := strings.TrimSpace(args[0])
			if idx := strings.Index(raw, "?"); idx >= 0 {
				raw = raw[idx+1:]
			}
			query, err := url.ParseQuery(raw)
			if err != nil {
				return fmt.Errorf("parse callback query: %w", err)
			}
			params := core.NewCallbackParams(query)
			if !shopify.Verify(params.Values, cfg.ClientSecret) {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				return fmt.Errorf("callback signature does not match")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}

func newCredentialsCommand(flags *globalFlags, stderr io.Writer) *cobra.Command {
	var (
		account string
		limit   int
		offset  int
	)
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "List stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, logger, err := flags.load(stderr)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), file, logger, runtimeOptions{secretsPath: flags.secretsPath})
			if err != nil {
				return err
			}
			defer rt.Close()

			credentials, err := gocommand.Query[installquery.ListCredentialsMessage, []core.Credential](
				cmd.Context(),
				installquery.ListCredentialsMessage{Filter: core.CredentialFilter{
					AccountIdentifier: account,
					Limit:             limit,
					Offset:            offset,
				}},
			)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, credential := range credentials {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n",
					credential.ID,
					credential.AccountIdentifier,
					credential.GrantedScopes,
					credential.CreatedAt.UTC().Format(time.RFC3339),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "filter by shop domain")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size, 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
