package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"

	apiv1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var healthOnly bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the supervisor status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			conn, err := dial(flags.address)
			if err != nil {
				return err
			}
			defer conn.Close()

			client := apiv1.NewSupervisorClient(conn)
			resp, err := client.Status(ctx, &emptypb.Empty{})
			if err != nil {
				return err
			}
			st := apiv1.StatusFromProto(resp)

			if healthOnly {
				if st.Kind == "" {
					fmt.Println(healthpb.HealthCheckResponse_NOT_SERVING)
					return nil
				}
				h, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: apiv1.ServiceName + "/" + st.Kind.String()})
				if err != nil {
					return err
				}
				fmt.Println(h.GetStatus())
				return nil
			}
			printStatusTable(st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&healthOnly, "health", false, "print only the health status of the current backend")
	return cmd
}
