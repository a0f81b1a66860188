package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"

	"encryptedpoker/internal/app"
	"encryptedpoker/internal/archive"
)

func main() {
	var (
		home      = flag.String("home", ".eppd", "app home directory (state will be stored under <home>/app)")
		addr      = flag.String("addr", "tcp://127.0.0.1:26658", "ABCI listen address")
		transport = flag.String("transport", "socket", "ABCI transport (socket|grpc)")
		archPath  = flag.String("archive", "", "sqlite archive path (default <home>/archive.db)")
		noArchive = flag.Bool("no-archive", false, "disable the local action/result archive")
	)
	flag.Parse()

	opts := []app.Option{}
	if !*noArchive {
		path := *archPath
		if path == "" {
			path = filepath.Join(*home, "archive.db")
		}
		arch, err := archive.Open(path)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "open archive: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = arch.Close() }()
		opts = append(opts, app.WithArchive(arch))
	}

	a, err := app.New(*home, opts...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init app: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(*addr, *transport, a)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "start abci server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "abci server start: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = srv.Stop() }()

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
