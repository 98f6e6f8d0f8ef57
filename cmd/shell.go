package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/present"
	"github.com/KaramelBytes/analytica-cli/internal/request"
	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
	"github.com/KaramelBytes/analytica-cli/internal/workflow"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
)

const shellHelp = `Commands:
  upload <file>            upload a dataset (from the upload screen)
  remove                   discard the dataset and start over
  tools                    list analysis tools
  tool <id>                choose the analysis tool
  run [x=a,b] [y=c] [k=v]  run the chosen tool with feature/target columns and parameters;
                           quote names with spaces: x="Monto Total",Cantidad
  adjust                   back to configuration after a result
  dismiss                  close the error dialog
  pareto <column>          drill down into a categorical column after a result
  back                     leave the drill-down
  state                    show the current screen
  help                     show this help
  quit                     leave the shell`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive analysis session (upload, configure, run, drill down)",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, engine, err := buildService(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if c, ok := svc.(*service.Client); ok {
			if err := c.Health(cmd.Context()); err != nil {
				fmt.Fprintf(out, "⚠ Warning: analysis service at %s is not answering: %v\n", c.BaseURL(), err)
			}
		}
		fmt.Fprintf(out, "Analytica shell (%s engine). Type 'help' for commands.\n", engine)
		sh := &shell{ctrl: newController(svc), reg: tools.Default(), out: out}
		return sh.loop(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

type shell struct {
	ctrl *workflow.Controller
	reg  *tools.Registry
	out  io.Writer
}

func (s *shell) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	s.prompt()
	for sc.Scan() {
		quit, err := s.exec(ctx, sc.Text())
		if err != nil {
			fmt.Fprintln(s.out, "✗ Error:", err)
		}
		if quit {
			return nil
		}
		s.prompt()
	}
	return sc.Err()
}

func (s *shell) prompt() {
	fmt.Fprintf(s.out, "analytica[%s]> ", s.ctrl.State())
}

// exec runs one command line; quit is true when the session should end.
func (s *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	fields, err := shellwords.Parse(line)
	if err != nil {
		return false, fmt.Errorf("parse command: %w", err)
	}
	if len(fields) == 0 {
		return false, nil
	}
	verb, rest := strings.ToLower(fields[0]), fields[1:]
	arg := func() (string, error) {
		if len(rest) != 1 {
			return "", fmt.Errorf("usage: %s <arg>", verb)
		}
		return rest[0], nil
	}
	// restOf takes every remaining word, so unquoted names with spaces still work.
	restOf := func() (string, error) {
		if len(rest) == 0 {
			return "", fmt.Errorf("usage: %s <arg>", verb)
		}
		return strings.Join(rest, " "), nil
	}
	switch verb {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, shellHelp)
	case "state":
		s.printState()
	case "tools":
		for _, d := range s.reg.All() {
			fmt.Fprintf(s.out, "  %-20s %s (%s)\n", d.ID, d.DisplayName, d.Category)
		}
	case "upload":
		path, err := restOf()
		if err != nil {
			return false, err
		}
		meta, err := s.ctrl.Upload(ctx, path)
		if err != nil {
			return false, err
		}
		present.Metadata(s.out, meta)
	case "remove":
		s.ctrl.RemoveFile()
		fmt.Fprintln(s.out, "✓ Dataset removed")
	case "tool":
		id, err := arg()
		if err != nil {
			return false, err
		}
		if err := s.ctrl.ChooseTool(id); err != nil {
			return false, err
		}
		d, _ := s.reg.Lookup(id)
		fmt.Fprintf(s.out, "✓ %s selected; needs %s\n", d.DisplayName, d.Roles)
	case "run":
		sel, err := parseShellSelections(rest)
		if err != nil {
			return false, err
		}
		o, err := s.ctrl.Run(ctx, sel)
		if err != nil {
			return false, err
		}
		d, err := s.reg.Lookup(s.ctrl.State().Tool)
		if err != nil {
			return false, err
		}
		if err := present.Outcome(s.out, d, o); err != nil {
			return false, err
		}
		if outcome.IsError(o) {
			fmt.Fprintln(s.out, "  (type 'dismiss' to return to configuration)")
		}
	case "adjust":
		return false, s.ctrl.Adjust()
	case "dismiss":
		return false, s.ctrl.Dismiss()
	case "pareto":
		col, err := restOf()
		if err != nil {
			return false, err
		}
		p, err := s.ctrl.Drilldown(ctx, col)
		if err != nil {
			return false, err
		}
		present.Pareto(s.out, p)
	case "back":
		return false, s.ctrl.Back()
	default:
		return false, fmt.Errorf("unknown command %q (type 'help')", verb)
	}
	return false, nil
}

func (s *shell) printState() {
	snap := s.ctrl.Snapshot()
	fmt.Fprintf(s.out, "screen: %s\n", snap.State)
	if snap.Metadata != nil {
		fmt.Fprintf(s.out, "dataset: %s (%d rows)\n", snap.Metadata.Filename, snap.Metadata.RowCount)
	}
	if snap.Banner != "" {
		fmt.Fprintf(s.out, "⚠ %s\n", snap.Banner)
	}
}

// parseShellSelections reads x=a,b and y=c; every other name=value is a tool parameter.
func parseShellSelections(tokens []string) (request.Selections, error) {
	var sel request.Selections
	var params []string
	for _, tok := range tokens {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return sel, errors.New("run arguments are name=value (x=a,b y=c k=v)")
		}
		switch strings.ToLower(k) {
		case "x":
			sel.Features = splitColumns([]string{v})
		case "y":
			sel.Target = v
		default:
			params = append(params, tok)
		}
	}
	p, err := request.ParseParams(params)
	if err != nil {
		return sel, err
	}
	sel.Params = p
	return sel, nil
}
