package main

import (
	"github.com/spf13/cobra"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/config"
)

type globalFlags struct {
	address    string
	configPath string
}

func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "ocrctl",
		Short:         "OCR backend supervisor CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.address, "address", "", "supervisor address (default $OCRS_ADDRESS or "+config.Default().Server.Address+")")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config (default $"+config.EnvConfigPath+")")

	root.AddCommand(newStartCmd(flags))
	root.AddCommand(newStatusCmd(flags))
	root.AddCommand(newStopCmd(flags))
	root.AddCommand(newProvisionCmd(flags))
	root.AddCommand(newLogsCmd(flags))
	root.AddCommand(newKillPortCmd(flags))

	return root
}
