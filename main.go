package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"medscan/cmd"
	"medscan/internal/config"
	"medscan/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load configuration: %v", err)
		// Fall back to the default logger config so startup errors still log
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	appLog := logger.WithComponent("main")
	appLog.Debug().Msg("Starting MedScan CLI")

	cmd.Execute()

	appLog.Debug().Msg("MedScan CLI shutdown")
	os.Exit(0)
}
