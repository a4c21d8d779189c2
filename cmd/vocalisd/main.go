package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"vocalis/internal/config"
	"vocalis/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override log level (debug, info, warn, error)")
	flag.Parse()

	cfg, path, found, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !found && path != "" {
		fmt.Fprintf(os.Stderr, "no config file at %s, using defaults\n", path)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("vocalisd: %v", err)
	}
}
