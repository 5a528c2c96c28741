package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"taskadmin/admin-console/internal/app"
	"taskadmin/admin-console/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("create app: %v", err)
	}

	if err := a.Run(ctx); err != nil {
		logrus.Fatalf("run app: %v", err)
	}
}
