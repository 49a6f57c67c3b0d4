package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"gpsdrain/internal/gpsserver"
	"gpsdrain/internal/logging"
	"gpsdrain/internal/sim"
)

var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Print version information and exit."`

	Listen string `short:"l" help:"Address to listen on." default:":2768"`
	Tag    string `help:"Tag prefixed to every response." default:"GPS"`

	Lat    float64       `help:"Route centre latitude in degrees." default:"47.397"`
	Lon    float64       `help:"Route centre longitude in degrees." default:"8.545"`
	Radius float64       `help:"Route radius in meters." default:"200"`
	Period time.Duration `help:"Time for one full figure-eight." default:"2m"`
	Fixed  bool          `help:"Report the centre point instead of moving along the route."`

	MaxResponses int `name:"max-responses" help:"Close each connection after this many answers (0 = unlimited)." default:"0"`

	LogLevel string `name:"log-level" help:"Log level." default:"info"`
	Pretty   bool   `help:"Human-readable console logs."`
}

func (c CLI) source() gpsserver.Source {
	if c.Fixed {
		return sim.Fixed{Lat: c.Lat, Lon: c.Lon}
	}
	return sim.Route{CenterLatDeg: c.Lat, CenterLonDeg: c.Lon, RadiusM: c.Radius, Period: c.Period}
}

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Name("gpsstub"),
		kong.Description("Answers GPS line-protocol requests with simulated coordinates"),
		kong.Vars{
			"version": version,
		},
	)

	_, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger, err := logging.New(logging.Config{Level: cli.LogLevel, Pretty: cli.Pretty})
	if err != nil {
		parser.FatalIfErrorf(fmt.Errorf("logging setup failed: %w", err))
	}

	srv, err := gpsserver.New(gpsserver.Config{
		Tag:          cli.Tag,
		Source:       cli.source(),
		MaxResponses: cli.MaxResponses,
		Logger:       &logger,
	})
	if err != nil {
		parser.FatalIfErrorf(err)
	}

	ln, err := net.Listen("tcp", cli.Listen)
	if err != nil {
		logger.Fatal().Err(err).Str("listen", cli.Listen).Msg("listen failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Serve(ctx, ln); err != nil {
		logger.Error().Err(err).Msg("gps server stopped")
	}
	logger.Info().Uint64("responses", srv.Served()).Msg("gpsstub stopping")
}
