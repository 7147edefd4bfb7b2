package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apiv1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/config"
)

// startSlack covers the round trip and port reaping on top of the readiness budget.
const startSlack = 30 * time.Second

// startTimeout is override when set, otherwise the configured readiness budget plus
// the time to stop a previous backend. A config that fails to load falls back to defaults.
func startTimeout(configPath string, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}
	budget := time.Duration(cfg.Readiness.MaxAttempts) * cfg.Readiness.Interval.Duration
	return budget + 2*cfg.Stop.GracePeriod.Duration + startSlack
}

func newStartCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "start [kind]",
		Short: "Start a backend and wait until it is ready",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), startTimeout(flags.configPath, timeout))
			defer cancel()

			conn, err := dial(flags.address)
			if err != nil {
				return err
			}
			defer conn.Close()

			client := apiv1.NewSupervisorClient(conn)
			resp, err := client.Start(ctx, wrapperspb.String(kind))
			if err != nil {
				return fmt.Errorf("start failed: %s", grpcMessage(err))
			}
			printStatusTable(apiv1.StatusFromProto(resp))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for readiness (default: derived from the readiness config)")
	return cmd
}
