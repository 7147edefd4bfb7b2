package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/config"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/reaper"
)

func newKillPortCmd(flags *globalFlags) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "kill-port [port]",
		Short: "Kill every local process listening on a backend port",
		Long:  "Kill every local process listening on a port. Without a port argument the port of --kind is taken from the configuration.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := resolvePort(flags.configPath, kind, args)
			if err != nil {
				return err
			}

			killed := reaper.New().KillProcessesOnPort(cmd.Context(), port)
			if len(killed) == 0 {
				fmt.Printf("no processes killed on port %d\n", port)
				return nil
			}
			for _, pid := range killed {
				fmt.Printf("killed %d\n", pid)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", lib.BackendPaddleOCR.String(), "backend kind whose port to reclaim")
	return cmd
}

func resolvePort(configPath, kind string, args []string) (int, error) {
	if len(args) == 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil || port <= 0 || port > 65535 {
			return 0, fmt.Errorf("invalid port %q", args[0])
		}
		return port, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, err
	}
	b, err := cfg.Backend(lib.BackendKind(kind))
	if err != nil {
		return 0, err
	}
	return b.Port, nil
}
