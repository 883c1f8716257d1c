package main

import (
	"github.com/spf13/cobra"

	"github.com/zpdzap/mlsandbox/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := initShared(true)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		notify, events := tui.EventSink(8)
		return tui.Run(sc.controller(notify, false), sc.cfg, events)
	},
}
