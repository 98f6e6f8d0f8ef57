package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/KaramelBytes/analytica-cli/internal/tools"
	"github.com/spf13/cobra"
)

var toolsCategory string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available analysis tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := tools.Default()
		if toolsCategory != "" {
			found := false
			for _, c := range reg.Categories() {
				if strings.EqualFold(c, toolsCategory) {
					found = true
				}
			}
			if !found {
				return fmt.Errorf("unknown category %q (available: %s)", toolsCategory, strings.Join(reg.Categories(), ", "))
			}
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tROLES\tPARAMS")
		for _, d := range reg.All() {
			if toolsCategory != "" && !strings.EqualFold(d.Category, toolsCategory) {
				continue
			}
			params := make([]string, 0, len(d.Params))
			for _, p := range d.Params {
				params = append(params, fmt.Sprintf("%s=%v", p.Name, p.Default))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.DisplayName, d.Category, d.Roles, strings.Join(params, " "))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().StringVar(&toolsCategory, "category", "", "only list tools of this category")
}
