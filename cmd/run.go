package cmd

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/present"
	"github.com/KaramelBytes/analytica-cli/internal/request"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
	"github.com/spf13/cobra"
)

var (
	runFeatures []string
	runTarget   string
	runParams   []string
	runPareto   string
	runOutput   string
)

// errAnalysisFailed is returned after an error outcome has been shown, so scripts see a
// non-zero exit.
var errAnalysisFailed = errors.New("analysis did not succeed")

var analyzeRunCmd = &cobra.Command{
	Use:   "run <tool> <file>",
	Short: "Upload a dataset, run one analysis tool and render the outcome",
	Example: `  analytica run correlacion sales.csv -x price,units
  analytica run regresion_lineal sales.csv -x units -y price --output result.json
  analytica run kmeans sales.csv -x price,units --param n_clusters=4 --pareto region`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolID, path := args[0], args[1]
		d, err := tools.Default().Lookup(toolID)
		if err != nil {
			return err
		}
		params, err := request.ParseParams(runParams)
		if err != nil {
			return err
		}
		svc, engine, err := buildService(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		ctx := cmd.Context()
		ctrl := newController(svc)

		meta, err := ctrl.Upload(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Uploaded %s (%d rows, %d columns) to %s engine\n", meta.Filename, meta.RowCount, len(meta.Columns), engine)
		if err := ctrl.ChooseTool(toolID); err != nil {
			return err
		}
		o, err := ctrl.Run(ctx, request.Selections{Features: runFeatures, Target: runTarget, Params: params})
		if err != nil {
			return err
		}
		if err := present.Outcome(out, d, o); err != nil {
			return err
		}
		if runOutput != "" {
			if err := writeOutcome(runOutput, o); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Wrote outcome to %s\n", runOutput)
		}
		if outcome.IsError(o) {
			return fmt.Errorf("%w: %s", errAnalysisFailed, o.Kind())
		}
		if runPareto != "" {
			p, err := ctrl.Drilldown(ctx, runPareto)
			if err != nil {
				return err
			}
			present.Pareto(out, p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeRunCmd)
	analyzeRunCmd.Flags().StringSliceVarP(&runFeatures, "features", "x", nil, "feature column(s), comma-separated or repeated")
	analyzeRunCmd.Flags().StringVarP(&runTarget, "target", "y", "", "target (or grouping) column")
	analyzeRunCmd.Flags().StringArrayVarP(&runParams, "param", "p", nil, "tool parameter as name=value (repeatable)")
	analyzeRunCmd.Flags().StringVar(&runPareto, "pareto", "", "after a successful run, drill down into this categorical column")
	analyzeRunCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write the outcome as JSON to this path")
}
