package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"

	apiv1 "github.com/SanjoDeundiak/ocr-supervisor/api/v1"
)

func newLogsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream backend output (stdout/stderr) from the beginning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			conn, err := dial(flags.address)
			if err != nil {
				return err
			}
			defer conn.Close()

			client := apiv1.NewSupervisorClient(conn)
			stream, err := client.GetOutput(ctx, &emptypb.Empty{})
			if err != nil {
				return err
			}
			for {
				msg, err := stream.Recv()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}

				name, data := apiv1.OutputFromProto(msg)
				var w io.Writer
				switch name {
				case apiv1.StreamStdout:
					w = os.Stdout
				case apiv1.StreamStderr:
					w = os.Stderr
				}

				if w != nil {
					if _, werr := w.Write(data); werr != nil {
						return werr
					}
				}
			}
		},
	}
	return cmd
}
