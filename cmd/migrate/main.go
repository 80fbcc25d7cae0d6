package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/forkfleet/forkfleet-backend/pkg/bootstrap"
	"github.com/forkfleet/forkfleet-backend/pkg/db"
	"github.com/forkfleet/forkfleet-backend/pkg/migrate"
)

type options struct {
	cmd      string
	dir      string
	embedded bool
	name     string
	version  string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory on disk")
	flag.BoolVar(&opts.embedded, "embedded", true, "use the migrations compiled into this binary instead of -dir")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	bootstrap.Main("migrate", func(ctx context.Context, rt *bootstrap.Runtime) error {
		ctx = rt.Logger.WithFields(ctx, map[string]any{"cmd": opts.cmd, "dir": opts.dir, "embedded": opts.embedded})
		return execute(ctx, rt, opts)
	})
}

func execute(ctx context.Context, rt *bootstrap.Runtime, opts options) error {
	// create and validate only touch files
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required for create")
		}
		path, err := migrate.NewFile(opts.dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.Validate(os.DirFS(opts.dir)); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	}

	// the migrate binary never auto-migrates, so it skips rt.Database
	client, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		return err
	}
	rt.OnClose("database", client.Close)
	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}

	source := migrate.Embedded()
	if !opts.embedded {
		source = os.DirFS(opts.dir)
	}
	m, err := migrate.NewMigrator(sqlDB, source, rt.Logger)
	if err != nil {
		return err
	}

	rt.Logger.Info(ctx, "running migrations")
	switch opts.cmd {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "status":
		return m.Status(ctx)
	case "version":
		if opts.version == "" {
			return errors.New("-version is required for version")
		}
		return m.To(ctx, opts.version)
	default:
		return fmt.Errorf("unknown command %q", opts.cmd)
	}
}
