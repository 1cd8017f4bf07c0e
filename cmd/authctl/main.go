package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/authcore/internal/authctl"
	"github.com/dmitrijs2005/authcore/internal/flagx"
	"github.com/dmitrijs2005/authcore/internal/server"
	"github.com/dmitrijs2005/authcore/internal/server/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.DecryptSecret(ctx); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := server.NewLogger(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app := authctl.NewApp(cfg, logger, os.Stdin, os.Stdout)
	if err := app.Run(ctx, flagx.Positional(os.Args[1:], config.ValueFlags())); err != nil {
		if errors.Is(err, authctl.ErrUsage) {
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}

}
