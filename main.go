package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"ocrdesk/cmd"
	"ocrdesk/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Configuration is loaded per command once flags are parsed; until then
	// log with the defaults.
	if err := logger.Setup(logger.DefaultConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cmd.Execute()
}
