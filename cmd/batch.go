package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/present"
	"github.com/KaramelBytes/analytica-cli/internal/request"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
	"github.com/KaramelBytes/analytica-cli/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	batchParams    []string
	batchJobs      int
	batchOutputDir string
	batchQuiet     bool
)

type batchJob struct {
	desc tools.Descriptor
	sel  request.Selections
}

// parseBatchSpec reads "tool[:x1,x2[:y]]".
func parseBatchSpec(spec string, params map[string]any) (batchJob, error) {
	parts := strings.SplitN(spec, ":", 3)
	d, err := tools.Default().Lookup(strings.TrimSpace(parts[0]))
	if err != nil {
		return batchJob{}, err
	}
	job := batchJob{desc: d, sel: request.Selections{Params: params}}
	if len(parts) > 1 {
		job.sel.Features = splitColumns([]string{parts[1]})
	}
	if len(parts) > 2 {
		job.sel.Target = strings.TrimSpace(parts[2])
	}
	return job, nil
}

var batchCmd = &cobra.Command{
	Use:   "batch <file> <tool[:features[:target]]>...",
	Short: "Run several analysis tools on one dataset concurrently",
	Example: `  analytica batch sales.csv resumen:price,units correlacion:price,units regresion_lineal:units:price
  analytica batch sales.csv kmeans:price,units pca:price,units --jobs 2 --output-dir results/`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandFiles(args[:1])
		if err != nil {
			return err
		}
		if len(files) > 1 {
			return fmt.Errorf("batch takes one dataset, %q matched %d files", args[0], len(files))
		}
		path := files[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read dataset: %w", err)
		}
		params, err := request.ParseParams(batchParams)
		if err != nil {
			return err
		}
		jobs := make([]batchJob, 0, len(args)-1)
		for _, spec := range args[1:] {
			j, err := parseBatchSpec(spec, params)
			if err != nil {
				return err
			}
			jobs = append(jobs, j)
		}
		if batchOutputDir != "" {
			if err := utils.EnsureDir(batchOutputDir); err != nil {
				return err
			}
		}
		svc, _, err := buildService(cfg)
		if err != nil {
			return err
		}

		total := len(jobs)
		outputs := make([]bytes.Buffer, total)
		failed := make([]bool, total)
		g, ctx := errgroup.WithContext(cmd.Context())
		if batchJobs > 0 {
			g.SetLimit(batchJobs)
		}
		for i, job := range jobs {
			i, job := i, job
			g.Go(func() error {
				if !batchQuiet {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] Running %s...\n", i+1, total, job.desc.ID)
				}
				// Each tool gets its own session; an upload failure stops the whole batch.
				ctrl := newController(svc)
				if _, err := ctrl.UploadReader(ctx, filepath.Base(path), bytes.NewReader(data)); err != nil {
					return fmt.Errorf("%s: %w", job.desc.ID, err)
				}
				if err := ctrl.ChooseTool(job.desc.ID); err != nil {
					return err
				}
				buf := &outputs[i]
				o, err := ctrl.Run(ctx, job.sel)
				if err != nil {
					fmt.Fprintf(buf, "✗ %s: %v\n", job.desc.DisplayName, err)
					failed[i] = true
					return nil
				}
				if err := present.Outcome(buf, job.desc, o); err != nil {
					return err
				}
				failed[i] = outcome.IsError(o)
				if batchOutputDir != "" {
					name := fmt.Sprintf("%02d-%s.json", i+1, job.desc.ID)
					if err := writeOutcome(filepath.Join(batchOutputDir, name), o); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		nFailed := 0
		for i := range outputs {
			if i > 0 {
				fmt.Fprintln(out)
			}
			if _, err := outputs[i].WriteTo(out); err != nil {
				return err
			}
			if failed[i] {
				nFailed++
			}
		}
		if batchOutputDir != "" {
			fmt.Fprintf(out, "\n✓ Wrote %d outcomes to %s\n", total, batchOutputDir)
		}
		if nFailed > 0 {
			return fmt.Errorf("%w: %d of %d tools", errAnalysisFailed, nFailed, total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringArrayVarP(&batchParams, "param", "p", nil, "tool parameter as name=value, applied to every tool (repeatable)")
	batchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", 4, "maximum analyses in flight (0 = unlimited)")
	batchCmd.Flags().StringVar(&batchOutputDir, "output-dir", "", "write each outcome as JSON into this directory")
	batchCmd.Flags().BoolVarP(&batchQuiet, "quiet", "q", false, "suppress progress lines")
}
