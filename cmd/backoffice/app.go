package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tbourn/restaurant-backoffice/internal/config"
	"github.com/tbourn/restaurant-backoffice/internal/domain"
	"github.com/tbourn/restaurant-backoffice/internal/observability"
	"github.com/tbourn/restaurant-backoffice/internal/query"
	"github.com/tbourn/restaurant-backoffice/internal/resource"
	"github.com/tbourn/restaurant-backoffice/internal/sysutil"
)

// app is the state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	configPath string
	out        io.Writer
	errOut     io.Writer

	cfg       config.ClientConfig
	logger    zerolog.Logger
	transport http.RoundTripper
	client    *resource.Client
	cache     *query.Cache
	shutdown  observability.ShutdownFunc
}

func newApp(out, errOut io.Writer) *app {
	return &app{v: config.NewClientViper(), out: out, errOut: errOut}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "backoffice",
		Short:         "Manage restaurant back-office records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ./backoffice.yaml)")
	pf.String("api-url", "", "API base URL including the version prefix [BACKOFFICE_API_URL]")
	pf.String("user", "", "user id sent as X-User-ID [BACKOFFICE_USER_ID]")
	pf.Duration("timeout", 10*time.Second, "per-request timeout [BACKOFFICE_TIMEOUT]")
	_ = a.v.BindPFlag(config.KeyAPIURL, pf.Lookup("api-url"))
	_ = a.v.BindPFlag(config.KeyUserID, pf.Lookup("user"))
	_ = a.v.BindPFlag(config.KeyTimeout, pf.Lookup("timeout"))

	for _, b := range bindings() {
		root.AddCommand(newResourceCmd(a, b))
	}
	return root
}

// setup loads the client config and builds the client and the cache.
func (a *app) setup(ctx context.Context) error {
	if err := config.ReadClientFile(a.v, a.configPath); err != nil {
		return err
	}
	cfg, err := config.LoadClient(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	pretty := !sysutil.IsTruthy(os.Getenv("BACKOFFICE_LOG_JSON"))
	a.logger = sysutil.ConfigureLogger(a.errOut, cfg.LogLevel, pretty, "backoffice")

	rt := a.transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if cfg.Tracing {
		shutdown, err := observability.SetupOTel(ctx, config.OTELConfig{
			Enabled:     true,
			Endpoint:    sysutil.FirstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4317"),
			Insecure:    true,
			ServiceName: "backoffice-cli",
			SampleRatio: 1,
		}, version)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		a.shutdown = shutdown
		rt = observability.TracedTransport(rt)
	}

	a.client, err = resource.NewClient(cfg.APIURL,
		resource.WithTransport(rt),
		resource.WithTimeout(cfg.Timeout),
		resource.WithUserID(cfg.UserID),
		resource.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.cache = query.New(
		query.WithStaleTime(cfg.StaleTime),
		query.WithGCTime(cfg.GCTime),
		query.WithLogger(a.logger),
	)
	a.cache.Start(ctx)
	return nil
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}
}

func (a *app) notifier() query.Notifier {
	return query.LogNotifier{Logger: &a.logger}
}

// print writes v as indented JSON.
func (a *app) print(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}

// bindings lists the resources the CLI manages.
func bindings() []resourceBinding {
	return []resourceBinding{
		binding[domain.Brand]{desc: domain.Brands},
		binding[domain.Restaurant]{desc: domain.Restaurants},
		binding[domain.Category]{desc: domain.Categories},
		binding[domain.MenuItem]{desc: domain.MenuItems},
		binding[domain.Discount]{desc: domain.Discounts},
		binding[domain.TaxGroup]{desc: domain.TaxGroups},
		binding[domain.DiningTable]{desc: domain.Tables},
		binding[domain.Role]{desc: domain.Roles},
		binding[domain.User]{desc: domain.Users},
	}
}
