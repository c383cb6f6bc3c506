package main

import (
	"fmt"
)

// CheckCmd reports the highest available version newer than what's
// installed, without installing it.
type CheckCmd struct{}

func (c *CheckCmd) Run(app *appContext) error {
	version, found, err := app.updater.FindUpdate(app.ctx)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("up to date")
		return nil
	}
	fmt.Println(version)
	return nil
}

// InstallCmd fetches and installs a specific version.
type InstallCmd struct {
	Version string `arg:"" help:"Version to install."`
}

func (c *InstallCmd) Run(app *appContext) error {
	return app.updater.InstallVersion(app.ctx, c.Version)
}

// UninstallCmd uninstalls a specific installed version.
type UninstallCmd struct {
	Version string `arg:"" help:"Version to uninstall."`
}

func (c *UninstallCmd) Run(app *appContext) error {
	return app.updater.UninstallVersion(c.Version)
}

// CleanupCmd runs a single reconciliation pass and reports whether it
// fully cleaned the appdir.
type CleanupCmd struct{}

func (c *CleanupCmd) Run(app *appContext) error {
	res, err := app.updater.Cleanup()
	if err != nil {
		return err
	}
	if !res.FullyCleaned {
		return fmt.Errorf("cleanup incomplete: %v", res.Errors)
	}
	fmt.Println("fully cleaned")
	return nil
}
