package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/tomgun/saktris-game-sub005/internal/relay"
	"github.com/tomgun/saktris-game-sub005/internal/server"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hub := relay.NewHub(cfg.RoomTTL)
	go hub.Run(ctx)

	logrus.WithFields(logrus.Fields{
		"addr":     cfg.Addr(),
		"room-ttl": cfg.RoomTTL,
	}).Info("starting signaling relay")

	srv := &http.Server{Addr: cfg.Addr(), Handler: server.NewRouter(hub)}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Fatal("relay server failed")
	}
}
