// annostore command line interface
// Queries, renders and searches an annotation database as one coder
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nainya/annostore/internal/config"
	"github.com/nainya/annostore/internal/logger"
	"github.com/nainya/annostore/internal/metrics"
	"github.com/nainya/annostore/internal/server"
	"github.com/nainya/annostore/pkg/session"
)

// app carries the state shared by all subcommands of one invocation
type app struct {
	out io.Writer

	cfgPath     string
	dbPath      string
	coderID     int
	logLevel    string
	pretty      bool
	metricsPort int

	log     *logger.Logger
	metrics *metrics.Metrics
	sess    *session.Session
	obs     *server.ObservabilityServer
	stop    chan struct{}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "annostore",
		Short: "Query, render and search annotated documents",
		Long: `annostore opens an annotation database as one coder and exposes the
statement filter, the highlight overlay and the streaming full-text search.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&a.dbPath, "db", "", "annotation database path (overrides config)")
	flags.IntVar(&a.coderID, "coder", 0, "act as this coder id (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flags.BoolVar(&a.pretty, "pretty", false, "human readable logs")
	flags.IntVar(&a.metricsPort, "metrics-port", 0, "serve /metrics, /health and pprof on this port")

	root.AddCommand(
		a.searchCmd(),
		a.renderCmd(),
		a.statementsCmd(),
		a.entitiesCmd(),
		a.regexCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides and opens the session
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.Path = a.dbPath
	}
	if flags.Changed("coder") {
		cfg.Database.CoderID = a.coderID
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("pretty") {
		cfg.Logging.Pretty = a.pretty
	}
	if flags.Changed("metrics-port") {
		cfg.Metrics.Enabled = a.metricsPort > 0
		cfg.Metrics.Port = a.metricsPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.InitGlobalLogger(logger.Config{
		Level:      cfg.Logging.Level,
		Pretty:     cfg.Logging.Pretty,
		WithCaller: cfg.Logging.WithCaller,
	})
	a.log = logger.GetGlobalLogger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(reg)
	a.stop = make(chan struct{})
	a.metrics.StartUptimeUpdater(10*time.Second, a.stop)

	a.sess, err = session.Open(cmd.Context(), cfg, a.log, a.metrics)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Database.Path, err)
	}

	if cfg.Metrics.Enabled {
		a.obs = server.NewObservabilityServer(cfg.Metrics.Port, reg, a.sess.Ready, a.log)
		go func() {
			if err := a.obs.Start(); err != nil {
				a.log.Error("observability server stopped").Err(err).Send()
			}
		}()
	}
	return nil
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	var errs []error
	if a.obs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.obs.Shutdown(ctx))
		cancel()
	}
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
	if a.sess != nil {
		errs = append(errs, a.sess.Close())
	}
	return errors.Join(errs...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
