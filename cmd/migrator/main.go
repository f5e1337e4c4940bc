package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/visiocare/clinic-migrator/internal/cli"
	"github.com/visiocare/clinic-migrator/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("%v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}
