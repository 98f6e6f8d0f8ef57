package cmd

import (
	"github.com/KaramelBytes/analytica-cli/internal/present"
	"github.com/KaramelBytes/analytica-cli/internal/request"
	"github.com/spf13/cobra"
)

var paretoCmd = &cobra.Command{
	Use:   "pareto <file> <column>",
	Short: "Upload a dataset and show the ABC (Pareto) distribution of one column",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, column := args[0], args[1]
		svc, _, err := buildService(cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		meta, err := newController(svc).Upload(ctx, path)
		if err != nil {
			return err
		}
		// The drill-down normally follows a result; here it is requested directly.
		req, err := request.BuildPareto(meta, column)
		if err != nil {
			return err
		}
		p, err := svc.RunPareto(ctx, req)
		if err != nil {
			return err
		}
		present.Pareto(cmd.OutOrStdout(), p)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(paretoCmd)
}
