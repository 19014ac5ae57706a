package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zond/juicevox"
	"github.com/zond/juicevox/config"
	"github.com/zond/juicevox/server"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file. Defaults apply if empty.")
	dataDir := flag.String("dir", "", "Where to save database and settings, overrides the configuration.")
	httpAddr := flag.String("http", "", "Where to listen to websocket clients, overrides the configuration.")
	sshAddr := flag.String("ssh", "", "Where to listen to console SSH connections, overrides the configuration.")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *sshAddr != "" {
		cfg.SSHAddr = *sshAddr
	}

	logger, closer := server.NewLogger(cfg.Log, os.Stderr)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(juicevox.MakeMainContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v\n%s", err, juicevox.StackTrace(err))
	}
	startErr := srv.Start(ctx)
	if err := srv.Close(); err != nil {
		logger.Error("closing server", "err", err)
	}
	if startErr != nil {
		os.Exit(1)
	}
}
