package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"

	apiv1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
)

func newStopCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			conn, err := dial(flags.address)
			if err != nil {
				return err
			}
			defer conn.Close()

			client := apiv1.NewSupervisorClient(conn)
			resp, err := client.Stop(ctx, &emptypb.Empty{})
			if err != nil {
				return err
			}
			printStatusTable(apiv1.StatusFromProto(resp))
			return nil
		},
	}
	return cmd
}
