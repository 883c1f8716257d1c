package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zpdzap/mlsandbox/internal/web"
)

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web control panel",
	RunE:  runServe,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVar(&listenFlag, "listen", "", "listen address (default from config, 127.0.0.1:5000)")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	sc, err := initShared(false)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	addr := sc.cfg.Listen
	if listenFlag != "" {
		addr = listenFlag
	}

	flashes := web.NewFlashStore()
	ctrl := sc.controller(flashes.Notifier(), true)

	srv, err := web.NewServer(web.ServerConfig{
		Addr:       addr,
		Controller: ctrl,
		Defaults:   sc.cfg.Defaults,
		Flashes:    flashes,
		Logger:     sc.logger,
		Gatherer:   sc.registry,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc.logger.Info("starting control panel",
		"addr", addr,
		"container", sc.cfg.Container.Name,
		"runtime", sc.cfg.Runtime,
	)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	if at, ok := ctrl.PendingStop(); ok {
		sc.logger.Warn("exiting with an armed auto-stop; the container keeps running", "deadline", at)
	}
	return nil
}
