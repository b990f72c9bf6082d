package main

import (
	"context"
	"os/signal"
	"syscall"

	"fenrir/internal/engine"
	"fenrir/internal/wire"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	sessions := wire.NewSessionRegistry()
	syncer := wire.NewSyncer(sessions)
	eng := engine.New(syncer)
	srv := wire.New("0.0.0.0", 9001, eng, syncer)

	go srv.Run(ctx)
	<-ctx.Done()
}
