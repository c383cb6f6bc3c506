package main

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
)

// ServeCmd runs find->fetch->install->uninstall->cleanup on a fixed
// interval until the process is terminated, supervised so a panicking
// check doesn't take the whole process down with it.
type ServeCmd struct {
	Interval time.Duration `help:"How often to check for updates." default:"1h"`
}

// autoUpdateService adapts one periodic AutoUpdate call into a
// suture.Service; suture restarts it (after its own backoff) if Serve
// returns an error instead of ctx.Err().
type autoUpdateService struct {
	app      *appContext
	interval time.Duration
}

func (s *autoUpdateService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			installed, err := s.app.updater.AutoUpdate(ctx, nil)
			if err != nil {
				log.Warnf("auto_update check failed: %v", err)
				continue
			}
			if installed != "" {
				log.Infof("auto_update installed %s", installed)
			}
		}
	}
}

func (c *ServeCmd) Run(app *appContext) error {
	supervisor := suture.NewSimple("eskyupdate")
	supervisor.Add(&autoUpdateService{app: app, interval: c.Interval})
	return supervisor.Serve(app.ctx)
}
