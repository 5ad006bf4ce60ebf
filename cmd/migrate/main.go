package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/migrations"
	"github.com/noah-isme/clearance-api/pkg/config"
	"github.com/noah-isme/clearance-api/pkg/database"
	"github.com/noah-isme/clearance-api/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migration command: up, down, status or version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db.DB, migrations.FS, ".", logr)
	if err != nil {
		logr.Fatal("init migrator", zap.Error(err))
	}

	switch *command {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "status":
		err = migrator.Status(ctx)
	case "version":
		var version int64
		version, err = migrator.Version(ctx)
		if err == nil {
			logr.Info("schema version", zap.Int64("version", version))
		}
	default:
		logr.Fatal("unknown migration command", zap.String("command", *command))
	}
	if err != nil {
		logr.Fatal("migration failed", zap.String("command", *command), zap.Error(err))
	}
}
