package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/schemadiagram/internal/client/cli"
	"github.com/dmitrijs2005/schemadiagram/internal/client/config"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	app := cli.NewApp(cfg)

	if err := app.Run(ctx); err != nil {
		stop()
		log.Fatalf("%v", err)
	}

}
