package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/exposure-kit/enlifecycle/internal/adapters/log"
	"github.com/exposure-kit/enlifecycle/internal/config"
	"github.com/exposure-kit/enlifecycle/internal/ports"
	"github.com/exposure-kit/enlifecycle/pkg/enlifecycle"
)

const longHelp = `Drive the exposure-notification lifecycle core from the command line.

Lifecycle signals are read from stdin, one per line:

  start
  will-enter-foreground
  did-become-active
  will-resign-active
  did-enter-background
  background-task-wake:<task-id>

Each signal runs its sequence; the outcome is printed to stdout. Unknown
signals are logged and dropped. Blank lines and lines starting with # are
ignored.`

var exampleUsage = strings.TrimSpace(`
  printf 'start\ndid-enter-background\n' | enlifecycle --state-dir /tmp/enl
  enlifecycle --config $HOME/.enlifecycle/config.toml --metrics-addr :9464 < signals.txt
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "enlifecycle: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	cfg := config.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "enlifecycle",
		Short:         "Run lifecycle sequences and dummy traffic for an exposure-notification app",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = config.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			watchFile := ""
			if cfgFile != "" && config.FileExists(cfgFile) {
				fc, err := config.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := config.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
				watchFile = cfgFile
			}

			// ENLIFECYCLE_* override the file; explicit flags override both.
			if err := config.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logAdapter.NewZerolog(errOut, cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			logger.Info("configuration",
				ports.String("state_dir", cfg.StateDir),
				ports.String("store", cfg.Store),
				ports.String("service_url", cfg.ServiceURL),
				ports.Bool("background_launch", cfg.BackgroundLaunch),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, watchFile, logger, in, out)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.enlifecycle/config.toml)")
	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for persisted state (default: $HOME/.enlifecycle/state)")
	root.Flags().StringVar(&cfg.Store, "store", cfg.Store, "state store: json or sqlite")
	root.Flags().StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "backend base URL")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	root.Flags().DurationVar(&cfg.ConfigDownloadTimeout, "config-download-timeout", cfg.ConfigDownloadTimeout, "deadline of the configuration download step")
	root.Flags().DurationVar(&cfg.RetentionPeriod, "retention", cfg.RetentionPeriod, "age after which exposure results are cleared")
	root.Flags().StringVar(&cfg.Language, "language", cfg.Language, "UI language reported to the backend")
	root.Flags().StringVar(&cfg.AppName, "app-name", cfg.AppName, "app name reported to the backend")
	root.Flags().StringVar(&cfg.AppVersion, "app-version", cfg.AppVersion, "app version used for force-update checks")
	root.Flags().BoolVar(&cfg.BackgroundLaunch, "background-launch", cfg.BackgroundLaunch, "treat start as a launch into the background")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address (disabled when empty)")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	root.Flags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console or json")

	return root
}

func run(ctx context.Context, cfg config.Config, watchFile string, logger *logAdapter.Zerolog, in io.Reader, out io.Writer) error {
	opts := []enlifecycle.Option{enlifecycle.WithLogger(logger)}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, enlifecycle.WithMetrics(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", ports.Err(err))
			}
		}()
		logger.Info("serving metrics", ports.String("addr", cfg.MetricsAddr))
	}

	orch, err := enlifecycle.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	if watchFile != "" {
		w := config.NewWatcher(watchFile, cfg.Schedules, orch.ApplySchedules, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("config watcher stopped", ports.Err(err))
			}
		}()
	}

	err = forwardSignals(ctx, orch, in, out, logger)

	if closeErr := orch.Close(); closeErr != nil {
		logger.Error("shutdown incomplete", ports.Err(closeErr))
		err = errors.Join(err, closeErr)
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return err
}
