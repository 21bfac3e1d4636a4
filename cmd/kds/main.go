package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/internal/app"
)

const (
	appNamespace = "KDS"
	appName      = "kds"
	appVersion   = "0.1.0"
)

func main() {
	config, err := apt.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("Cannot setup %s(%s): %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	service, err := app.New(config, logger)
	if err != nil {
		log.Fatalf("Cannot create %s(%s): %v", appName, appVersion, err)
	}

	if err := service.Initialize(ctx); err != nil {
		log.Fatalf("Cannot initialize %s(%s): %v", appName, appVersion, err)
	}

	if err := service.Run(ctx); err != nil {
		log.Fatalf("Cannot run %s(%s): %v", appName, appVersion, err)
	}
}
