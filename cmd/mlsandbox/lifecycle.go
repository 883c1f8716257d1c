package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

var (
	launchCPU     float64
	launchRAM     float64
	launchTimeout int
	launchWait    bool
	statusJSON    bool
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Build the image and start the sandbox container",
	RunE:  runLaunch,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Force-remove the sandbox container",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := initShared(false)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		res := sc.controller(nil, false).Stop(cmd.Context())
		return report(res)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sandbox container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := initShared(false)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		st := sc.controller(nil, false).Status(cmd.Context())
		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				sandbox.Status
				Label string `json:"label"`
				Class string `json:"class"`
			}{st, st.Label(), st.Class()})
		}

		fmt.Printf("%s: %s\n", sc.cfg.Container.Name, st.Label())
		if st.Raw != "" {
			fmt.Printf("  %s\n", st.Raw)
		}
		if st.State == sandbox.StateRunning {
			fmt.Printf("  JupyterLab: http://127.0.0.1:%d\n", sc.cfg.Container.Port)
		}
		return nil
	},
}

func init() {
	launchCmd.Flags().Float64Var(&launchCPU, "cpu", 0, "CPU cores (default from config)")
	launchCmd.Flags().Float64Var(&launchRAM, "ram", 0, "memory limit in GiB (default from config)")
	launchCmd.Flags().IntVar(&launchTimeout, "timeout", 0, "auto-stop after N minutes, 0 to disable (default from config)")
	launchCmd.Flags().BoolVar(&launchWait, "wait", false, "stay in the foreground until the auto-stop fires")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	sc, err := initShared(false)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	spec := sandbox.Spec{
		CPUs:           sc.cfg.Defaults.CPUs,
		MemoryGiB:      sc.cfg.Defaults.MemoryGiB,
		TimeoutMinutes: sc.cfg.Defaults.TimeoutMinutes,
	}
	if cmd.Flags().Changed("cpu") {
		spec.CPUs = launchCPU
	}
	if cmd.Flags().Changed("ram") {
		spec.MemoryGiB = launchRAM
	}
	if cmd.Flags().Changed("timeout") {
		spec.TimeoutMinutes = launchTimeout
	}

	autoStops := make(chan sandbox.Event, 1)
	ctrl := sc.controller(func(ev sandbox.Event) {
		if !ev.Automatic {
			return
		}
		select {
		case autoStops <- ev:
		default:
		}
	}, false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := ctrl.Launch(ctx, spec)
	if err := report(res); err != nil {
		return err
	}
	fmt.Printf("JupyterLab: http://127.0.0.1:%d\n", sc.cfg.Container.Port)

	at, armed := ctrl.PendingStop()
	if !armed {
		return nil
	}
	if !launchWait {
		fmt.Fprintln(os.Stderr, "Warning: auto-stop only runs while mlsandbox is running. Use --wait or `mlsandbox serve` to keep the timer alive.")
		return nil
	}

	fmt.Printf("Waiting for auto-stop at %s (Ctrl-C leaves the sandbox running)...\n", at.Format("15:04:05"))
	select {
	case ev := <-autoStops:
		fmt.Println("Auto-stop:", ev.Result.Message)
		if !ev.Result.Success {
			return ev.Result.Err
		}
		return nil
	case <-ctx.Done():
		fmt.Println("\nInterrupted; the sandbox is still running.")
		return nil
	}
}

// report prints a lifecycle result and turns failures into an error.
func report(res sandbox.Result) error {
	if res.Success {
		fmt.Println(res.Message)
		return nil
	}
	fmt.Fprintln(os.Stderr, res.Message)
	if res.Output != "" {
		fmt.Fprintln(os.Stderr, res.Output)
	}
	return res.Err
}
