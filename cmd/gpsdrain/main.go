package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"gpsdrain/internal/discovery"
	"gpsdrain/internal/logging"
	"gpsdrain/internal/web"
)

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Name("gpsdrain"),
		kong.Description("Finds a GPS line server on the local subnet and feeds its coordinates into local location sinks"),
		kong.Vars{
			"version": version,
		},
	)

	_, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cfg, err := loadConfig(cli)
	if err != nil {
		parser.FatalIfErrorf(fmt.Errorf("config load failed: %w", err))
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if err != nil {
		parser.FatalIfErrorf(fmt.Errorf("logging setup failed: %w", err))
	}

	resolveSubnet(&cfg, discovery.LocalSubnetPrefix, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logs := web.NewLogBuffer(2000)
	rt, err := newDrainRuntime(ctx, cfg, logger, logs, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("runtime init failed")
	}
	defer rt.Close()

	logger.Info().
		Str("version", version).
		Str("range", cfg.Scan.Range().String()).
		Dur("interval", cfg.Poll.Interval).
		Msg("gpsdrain starting")

	if cfg.Web.Enable {
		status := web.NewStatus()
		status.SetListen(cfg.Web.Listen)
		handler := web.Handler(status, rt, logs, rt.Locations(), logger)
		go func() {
			logger.Info().Str("listen", cfg.Web.Listen).Msg("web listening")
			if err := web.Serve(ctx, cfg.Web.Listen, handler); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("web server stopped")
				cancel()
			}
		}()
	}

	runErr := rt.Run(ctx)
	logger.Info().Msg("gpsdrain stopping")
	if runErr != nil {
		logger.Error().Err(runErr).Msg("session ended")
		rt.Close()
		os.Exit(1)
	}
}
