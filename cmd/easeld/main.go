// Command easeld runs the easel daemon in the foreground.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"easel/internal/config"
	"easel/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	level := *logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: level}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
