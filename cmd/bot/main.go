package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/filmgatebot/filmgate/internal/bot"
	"github.com/filmgatebot/filmgate/internal/setup"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "filmgate",
		Usage: "Start the gated movie code bot",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return runBot(ctx)
		},
	}

	return app.Run(context.Background(), os.Args)
}

func runBot(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	if err := app.Store.Start(ctx); err != nil {
		return fmt.Errorf("failed to start store: %w", err)
	}

	b := bot.New(
		app.Telegram, app.Telegram, app.Store,
		app.Verifier, app.Referrals, app.Resolver,
		app.Config.Gate.Channels, app.Telegram.Username(), app.Logger,
	)
	b.Run(ctx)

	return nil
}
