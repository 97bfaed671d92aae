package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"frabcal/internal/config"
	appLog "frabcal/internal/log"
	"frabcal/internal/metrics"
	"frabcal/internal/pipeline"
	"frabcal/internal/web"

	_ "time/tzdata"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	input      string
	output     string
	logLevel   string
	watch      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	defer appLog.Sync()

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	// CLI flags override config file values if provided.
	if flags.input != "" {
		conf.Input = flags.input
	}
	if flags.output != "" {
		conf.Output = flags.output
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"input", conf.Input,
		"output", conf.Output,
		"timezone", conf.Timezone,
		"end_policy", conf.Range.EndPolicy,
		"until", conf.Range.Until,
		"min_date", conf.Filter.MinDate,
		"default_room", conf.DefaultRoom,
		"watch", flags.watch,
		"listen", conf.Listen,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serve := flags.watch && conf.Listen != ""

	var registry *prometheus.Registry
	var m *metrics.Metrics
	if conf.MetricsTextfile != "" || serve {
		registry = prometheus.NewRegistry()
		m = metrics.NewMetrics(registry)
	}
	runner := pipeline.NewRunner(conf, m)

	if flags.watch {
		if conf.RefreshCron == "" {
			appLog.Error("watch mode needs a refresh schedule", nil, "config_path", flags.configPath)
			return 1
		}

		errCh := make(chan error, 1)
		if serve {
			srv := web.NewServer(conf, runner, registry)
			go func() {
				err := srv.ListenAndServe(ctx)
				if err != nil {
					// A dead server ends the watch as well.
					stop()
				}
				errCh <- err
			}()
		}

		if err := runner.Watch(ctx, conf.RefreshCron); err != nil {
			appLog.Error("watch failed", err)
			return 1
		}
		if serve {
			if err := <-errCh; err != nil {
				appLog.Error("HTTP server failed", err, "listen", conf.Listen)
				return 1
			}
		}
		return 0
	}

	if _, err := runner.Run(ctx); err != nil {
		appLog.Error("conversion failed", err, "input", conf.Input)
		return 1
	}
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "frabcal.yaml", "Path to config file")
	flag.StringVar(&cfg.input, "input", "", "Calendar feed path or URL (overrides config if set)")
	flag.StringVar(&cfg.output, "output", "", "Schedule XML path (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config if set)")
	flag.BoolVar(&cfg.watch, "watch", false, "Keep running and regenerate on the configured refresh schedule")

	flag.Parse()

	return cfg
}
