// cmd/backup/main.go
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/semmidev/cloudvault/internal/adapter/encryption"
	"github.com/semmidev/cloudvault/internal/app"
	"github.com/semmidev/cloudvault/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	runID := flag.String("run", "", "run the backup config with this id once and exit")
	restoreID := flag.String("restore", "", "restore the backup run with this history id and exit")
	target := flag.String("target", "", "target directory for -restore")
	genKey := flag.Bool("genkey", false, "print a new hex encoded encryption key and exit")
	flag.Parse()

	if *genKey {
		key, err := encryption.GenerateKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		fmt.Println(hex.EncodeToString(key))
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *runID != "":
		h, err := application.RunOnce(ctx, *runID)
		if err != nil {
			return fmt.Errorf("backup %s: %w", *runID, err)
		}
		fmt.Printf("backup %s completed: %s (%d bytes)\n", h.ID, h.ArtifactKey(), h.Size)
		return nil

	case *restoreID != "":
		if err := application.RestoreOnce(ctx, *restoreID, *target); err != nil {
			return fmt.Errorf("restore %s: %w", *restoreID, err)
		}
		fmt.Printf("restored %s into %s\n", *restoreID, *target)
		return nil
	}

	return application.Run(ctx)
}
