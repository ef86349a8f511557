package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"asistencia/internal/attendance"
	"asistencia/internal/config"
	"asistencia/internal/kv"
	"asistencia/internal/remote"
	"asistencia/internal/session"
	"asistencia/internal/store"
)

// Command builds the root command. Configuration is read from the
// environment when a subcommand runs.
func Command() *cli.Command {
	var (
		app     *App
		cleanup = func() {}
	)
	current := func() *App { return app }

	return &cli.Command{
		Name:  "asistencia",
		Usage: "registro de asistencia a clases",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log debug output to stderr",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := config.LoadClient(ctx)
			if err != nil {
				return ctx, err
			}
			logger, err := newLogger(cmd.Bool("verbose"))
			if err != nil {
				return ctx, err
			}
			zap.ReplaceGlobals(logger)
			app, cleanup, err = Build(ctx, cfg, os.Stdout, logger)
			return ctx, err
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			cleanup()
			_ = zap.L().Sync()
			return nil
		},
		Commands: []*cli.Command{
			registerCommand(current),
			editCommand(current),
			whoamiCommand(current),
			checkinCommand(current),
			logoutCommand(current, os.Stdin),
		},
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

// Build wires an App from cfg and loads the saved session. The returned
// func releases backend connections.
func Build(ctx context.Context, cfg *config.Client, out io.Writer, logger *zap.Logger) (*App, func(), error) {
	cleanup := func() {}
	var profiles kv.Store
	switch cfg.KVBackend {
	case "memory":
		profiles = kv.NewMemory()
	case "redis":
		rdb := store.NewRedis(cfg.RedisAddr, "", 0)
		cleanup = func() { _ = rdb.Close() }
		profiles = kv.NewRedisStore(rdb.Client, "")
	default:
		path := cfg.KVPath
		if path == "" {
			p, err := kv.DefaultPath()
			if err != nil {
				return nil, cleanup, err
			}
			path = p
		}
		profiles = kv.NewFileStore(path)
		logger.Debug("profile store", zap.String("path", path))
	}

	sess := session.NewManager(profiles, logger.Named("session"))
	sess.Load(ctx)

	svc := attendance.NewService(
		remote.New(cfg.ServiceURL, cfg.ServiceKey, cfg.HTTPTimeout),
		attendance.WithLogger(logger.Named("attendance")),
	)
	return NewApp(sess, attendance.NewGate(svc), out, logger), cleanup, nil
}

func registerCommand(app func() *App) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "regístrate en este dispositivo",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "nombre completo (1-3 nombres y 2 apellidos)", Required: true},
			&cli.StringFlag{Name: "student-id", Aliases: []string{"m"}, Usage: "matrícula de 8 dígitos", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return app().Register(ctx, cmd.String("name"), cmd.String("student-id"))
		},
	}
}

func editCommand(app func() *App) *cli.Command {
	return &cli.Command{
		Name:  "edit",
		Usage: "actualiza tu información",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "nombre completo"},
			&cli.StringFlag{Name: "student-id", Aliases: []string{"m"}, Usage: "matrícula"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return app().Edit(ctx, cmd.String("name"), cmd.String("student-id"))
		},
	}
}

func whoamiCommand(app func() *App) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "muestra el estudiante registrado",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return app().WhoAmI(ctx)
		},
	}
}

func checkinCommand(app func() *App) *cli.Command {
	return &cli.Command{
		Name:    "checkin",
		Aliases: []string{"asistencia"},
		Usage:   "toma asistencia",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return app().CheckIn(ctx)
		},
	}
}

func logoutCommand(app func() *App, in io.Reader) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "cierra tu sesión",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "no pedir confirmación"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !cmd.Bool("yes") && !confirm(cmd.Root().Writer, in, MsgConfirmLeave) {
				return nil
			}
			return app().Logout(ctx)
		},
	}
}

func confirm(w io.Writer, in io.Reader, prompt string) bool {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "%s [s/N] ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "si", "sí", "y", "yes":
		return true
	}
	return false
}
