// Command formsctl runs operator tasks against the forms database: schema
// migrations, demo seeding and CSV exports to a file or S3.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/formsvc/internal/application"
	"github.com/JonMunkholm/formsvc/internal/config"
	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/JonMunkholm/formsvc/internal/database"
	"github.com/JonMunkholm/formsvc/internal/exportsink"
	"github.com/JonMunkholm/formsvc/internal/logging"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "formsctl:", err)
		// Domain errors already read well; infrastructure ones get the coded hint.
		if core.KindOf(err) == "" && core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, "hint:", core.FormatUserError(err))
		}
		os.Exit(1)
	}
}

// ctl carries state shared by the commands once Before has run.
type ctl struct {
	cfg *config.Config
}

func newApp() *cli.App {
	x := &ctl{}
	return &cli.App{
		Name:  "formsctl",
		Usage: "operate the forms service",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "use an in-memory store instead of PostgreSQL",
			},
		},
		Before: func(c *cli.Context) error {
			_ = godotenv.Load()

			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			logging.Setup(logging.Options{
				Level:   cfg.Logging.Level,
				Format:  cfg.Logging.Format,
				Service: "formsctl",
				Output:  c.App.ErrWriter,
			})
			x.cfg = cfg
			return nil
		},
		Commands: []*cli.Command{
			x.migrateCommand(),
			x.seedDemoCommand(),
			x.exportCSVCommand(),
		},
	}
}

// openApp builds the application honoring --memory.
func (x *ctl) openApp(c *cli.Context) (*application.App, error) {
	return application.New(c.Context, x.cfg, application.Options{
		Memory: c.Bool("memory"),
	})
}

func (x *ctl) migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending migrations, or roll back the latest with --down",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "down", Usage: "roll back the most recent migration"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("memory") {
				return errors.New("migrate needs a database; drop --memory")
			}

			pool, err := application.Connect(c.Context, x.cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if c.Bool("down") {
				err = database.MigrateDown(c.Context, pool)
			} else {
				err = database.Migrate(c.Context, pool)
			}
			if err != nil {
				return err
			}

			version, err := database.MigrationVersion(c.Context, pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "migrate: schema at version %d\n", version)
			return nil
		},
	}
}

func (x *ctl) seedDemoCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed-demo",
		Usage: "create and publish the Demo Intake form",
		Action: func(c *cli.Context) error {
			app, err := x.openApp(c)
			if err != nil {
				return err
			}
			defer app.Close()

			form, created, err := app.Service.SeedDemo(c.Context)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(c.App.Writer, "seed-demo: created and published demo form %d\n", form.ID)
			} else {
				fmt.Fprintf(c.App.Writer, "seed-demo: demo form %d already exists\n", form.ID)
			}
			return nil
		},
	}
}

func (x *ctl) exportCSVCommand() *cli.Command {
	return &cli.Command{
		Name:  "export-csv",
		Usage: "write a form's submissions as CSV to a file or s3://bucket/key",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "form-id", Required: true},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true},
			&cli.StringFlag{Name: "version", Value: core.ExportVersionV1},
		},
		Action: func(c *cli.Context) error {
			dest, err := exportsink.ParseDestination(c.String("output"))
			if err != nil {
				return err
			}

			app, err := x.openApp(c)
			if err != nil {
				return err
			}
			defer app.Close()

			export, err := app.Service.ExportCSV(c.Context, c.Int64("form-id"), c.String("version"))
			if err != nil {
				return err
			}

			sink, err := exportsink.Open(c.Context, dest, app.Config.S3)
			if err != nil {
				return err
			}
			n, err := sink.Deliver(c.Context, export)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "export-csv: wrote %d bytes to %s\n", n, sink)
			return nil
		},
	}
}
