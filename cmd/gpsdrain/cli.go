package main

import (
	"github.com/alecthomas/kong"

	"gpsdrain/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Print version information and exit."`

	Config string `short:"c" help:"Path to YAML config. Built-in defaults are used when empty."`

	Subnet string `help:"Subnet prefix to scan, e.g. 192.168.1. Overrides scan.subnet."`
	Start  int    `help:"First host octet to probe. Overrides scan.start_octet."`
	End    int    `help:"Last host octet to probe. Overrides scan.end_octet."`
	Port   int    `short:"p" help:"GPS server port. Overrides scan.port."`

	AllowOverride bool   `name:"allow-override" help:"Confirm the location override capability is available (location.override_allowed)."`
	Retry         bool   `help:"Start a new session after one ends with an error (session.retry)."`
	Web           string `help:"Serve the status API on this address (web.listen). Enables web."`
}

// apply lays command-line overrides over the loaded config.
func (c CLI) apply(cfg *config.Config) error {
	if c.Subnet != "" {
		cfg.Scan.Subnet = c.Subnet
	}
	if c.Start != 0 {
		cfg.Scan.StartOctet = c.Start
	}
	if c.End != 0 {
		cfg.Scan.EndOctet = c.End
	}
	if c.Port != 0 {
		cfg.Scan.Port = c.Port
	}
	if c.AllowOverride {
		cfg.Location.OverrideAllowed = true
	}
	if c.Retry {
		cfg.Session.Retry = true
	}
	if c.Web != "" {
		cfg.Web.Enable = true
		cfg.Web.Listen = c.Web
	}
	return config.DefaultAndValidate(cfg)
}

func loadConfig(c CLI) (config.Config, error) {
	cfg := config.Default()
	if c.Config != "" {
		loaded, err := config.Load(c.Config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := c.apply(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
