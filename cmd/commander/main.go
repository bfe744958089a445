package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	flag "github.com/spf13/pflag"

	"github.com/inkley/sensor-commander/cmd/commander/internal/app"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to a YAML config file (flags override it)")
		channel    = flag.String("channel", "", "Serial port of the SLCAN adapter (e.g. COM5, /dev/ttyACM0)")
		bitRate    = flag.Uint32("bitrate", 0, "CAN bus bit rate in bit/s (500000 or 1000000)")
		responseID = flag.Uint32("response-id", 0, "CAN id the module sends acknowledgements to")
		outDir     = flag.String("out-dir", "", "Output directory for CSV logging")
		filename   = flag.String("filename", "", "CSV filename for logging")
		logLevel   = flag.String("log-level", "", "Log level (debug|info|warn|error)")
	)

	flag.Parse()

	cfg := app.DefaultConfig()
	if *configFile != "" {
		loaded, err := app.LoadConfigFile(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *channel != "" {
		cfg.Channel = *channel
	}
	if *bitRate != 0 {
		cfg.BitRate = *bitRate
	}
	if *responseID != 0 {
		cfg.ResponseID = *responseID
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *filename != "" {
		cfg.Filename = *filename
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := app.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialise logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	session := app.NewSession(cfg, logger)
	cli := app.NewCLI(session, os.Stdin, os.Stdout)

	replDone := make(chan struct{})
	go func() {
		cli.Run()
		close(replDone)
	}()

	select {
	case <-ctx.Done():
		logger.Infof("interrupt received, shutting down")
	case <-replDone:
	}

	if err := session.Close(); err != nil {
		logger.Errorf("session teardown: %v", err)
		os.Exit(1)
	}
}
