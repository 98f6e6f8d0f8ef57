package cmd

import (
	"github.com/KaramelBytes/analytica-cli/internal/present"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a CSV/XLSX dataset and show its columns and preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := buildService(cfg)
		if err != nil {
			return err
		}
		meta, err := newController(svc).Upload(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		present.Metadata(cmd.OutOrStdout(), meta)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
