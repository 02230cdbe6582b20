package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wagate/internal/gateway"
	"wagate/internal/session"
	// Session-client drivers register themselves by name at init time via
	// session.RegisterDriver; link the transport implementation here and
	// select it with session.driver in the config.
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := gateway.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	defer app.Close()

	err = app.Run(ctx)
	switch {
	case errors.Is(err, session.ErrLoggedOut):
		// Terminal: the operator must complete the pairing flow again.
		fmt.Fprintln(os.Stderr, "session logged out: re-authentication required")
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
