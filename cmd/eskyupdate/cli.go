// Command eskyupdate is the standalone entry point for driving the update
// engine from outside an embedding application: checking for, installing,
// and uninstalling versions, running a single cleanup pass, or running a
// long-lived periodic auto-update service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/eskygo/eskygo/internal/eskylog"
	"github.com/eskygo/eskygo/updater"
	"github.com/eskygo/eskygo/updater/httpfinder"
)

var log = eskylog.For("eskyupdate")

// CLI is the root kong command. Appdir and AppName are shared by every
// subcommand; each subcommand gets its own Run method invoked by kong's
// method-dispatch convention.
type CLI struct {
	Appdir   string `help:"Path to the managed application directory." env:"ESKY_APPDIR"`
	AppName  string `help:"Application name used in version directory names." env:"ESKY_APP_NAME"`
	Platform string `help:"Platform tag used in version directory names, e.g. linux-x86_64." env:"ESKY_PLATFORM"`
	IndexURL string `help:"HTTP index URL of published releases." env:"ESKY_INDEX_URL"`
	Config   string `help:"Optional YAML config file; fills in any of the flags above left unset." type:"existingfile" optional:""`

	CleanupHelper string `name:"esky-cleanup-helper" hidden:"" help:"internal: run as the cleanup_at_exit helper, reading the given control record"`

	Check     CheckCmd     `cmd:"" help:"Check for an available update without installing it."`
	Install   InstallCmd   `cmd:"" help:"Fetch and install a specific version."`
	Uninstall UninstallCmd `cmd:"" help:"Uninstall a specific installed version."`
	Cleanup   CleanupCmd   `cmd:"" help:"Run a single cleanup pass."`
	Serve     ServeCmd     `cmd:"" help:"Run periodic auto-update checks until terminated."`
}

// appContext carries shared state to every subcommand's Run method, kong's
// idiom for dependency injection via the parse-time Bind call.
type appContext struct {
	ctx     context.Context
	updater *updater.Updater
}

func main() {
	var cli CLI
	parser := kong.Must(&cli,
		kong.Name("eskyupdate"),
		kong.Description("Install, uninstall, and reconcile versions of a managed application."),
	)
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if cli.CleanupHelper != "" {
		os.Exit(updater.RunCleanupHelper(cli.CleanupHelper))
	}

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		fatal(err)
	}
	cfg.applyDefaults(&cli)

	if cli.Appdir == "" || cli.AppName == "" || cli.Platform == "" {
		fatal(fmt.Errorf("eskyupdate: appdir, app name, and platform are required (via flags, env vars, or --config)"))
	}

	finder, err := buildFinder(&cli)
	if err != nil {
		fatal(err)
	}

	u, err := updater.Open(cli.Appdir, cli.AppName, finder)
	if err != nil {
		fatal(err)
	}

	appCtx := &appContext{ctx: context.Background(), updater: u}
	if err := kctx.Run(appCtx); err != nil {
		fatal(err)
	}
}

func buildFinder(cli *CLI) (updater.VersionFinder, error) {
	if cli.IndexURL == "" {
		return nil, nil
	}
	staging := cli.Appdir + "-staging"
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("eskyupdate: prepare staging directory: %w", err)
	}
	return httpfinder.New(cli.IndexURL, cli.Platform, staging, nil), nil
}

func fatal(err error) {
	log.Errorf("%v", err)
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
