package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"asistencia/internal/auth"
	"asistencia/internal/config"
)

// keygen prints an access key for the table service, signed with
// JWT_SIGNING_KEY.
func main() {
	cmd := &cli.Command{
		Name:  "keygen",
		Usage: "mint an access key for the table service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "role",
				Usage: "key role (anon, service)",
				Value: auth.RoleAnon,
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "key lifetime; 0 never expires",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadServer(ctx)
	if err != nil {
		return err
	}
	key, err := auth.Issue(cmd.String("role"), cfg.JWTIssuer, cfg.JWTSigningKey, cmd.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, key)
	return nil
}
