package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/argus-labs/iris/pkg/iris/node"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("node stopped with error")
		os.Exit(1)
	}
}

func run() error {
	n, err := node.New(node.Options{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return n.Run(ctx)
}
