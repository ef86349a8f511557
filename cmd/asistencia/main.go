package main

import (
	"context"
	"fmt"
	"os"

	"asistencia/internal/client"
)

func main() {
	cmd := client.Command()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, client.Message(err))
		os.Exit(1)
	}
}
