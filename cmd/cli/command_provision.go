package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apiv1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
)

func newProvisionCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision [kind]",
		Short: "Create the backend environment and install its dependencies",
		Long:  "Create the backend environment and install its dependencies. This can take many minutes on first run.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			// no deadline: installing dependencies is bounded only by the package manager
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			conn, err := dial(flags.address)
			if err != nil {
				return err
			}
			defer conn.Close()

			client := apiv1.NewSupervisorClient(conn)
			resp, err := client.Provision(ctx, wrapperspb.String(kind))
			if err != nil {
				return fmt.Errorf("provisioning failed: %s", grpcMessage(err))
			}
			if resp.GetValue() {
				fmt.Println("environment ready")
			} else {
				fmt.Println("environment not ready")
			}
			return nil
		},
	}
	return cmd
}
