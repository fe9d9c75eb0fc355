package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/c360/formflow/flowconfig"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <flows.yaml>...",
		Short: "Load flow files and report graph problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := flowconfig.LoadRegistry(args...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := newStyles(out)
			unhealthy := 0
			for _, name := range registry.Names() {
				result, err := analyze(registry, name)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "%s: %s\n", st.title.Render(name), st.status(result.ValidationStatus))
				for _, screen := range result.UnreachableScreens {
					_, _ = fmt.Fprintf(out, "  %s %s\n", st.dim.Render("unreachable:"), screen)
				}
				for _, issue := range result.FallbackIssues {
					_, _ = fmt.Fprintf(out, "  %s: %s\n", issue.Screen, st.warning.Render(issue.Issue))
				}
				if result.ValidationStatus != "healthy" {
					unhealthy++
				}
			}

			strict, _ := cmd.Flags().GetBool("strict")
			if strict && unhealthy > 0 {
				return fmt.Errorf("%d flow(s) have warnings", unhealthy)
			}
			return nil
		},
	}
	cmd.Flags().Bool("strict", false, "Fail when any flow has warnings")
	return cmd
}

func newGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <flows.yaml>... --flow <name>",
		Short: "Print the screen transitions of a flow",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := flowconfig.LoadRegistry(args...)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("flow")
			if name == "" {
				names := registry.Names()
				if len(names) != 1 {
					return fmt.Errorf("--flow is required when files define %d flows", len(names))
				}
				name = names[0]
			}

			result, err := analyze(registry, name)
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return writeGraph(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringP("flow", "f", "", "Flow to print (defaults to the only flow)")
	cmd.Flags().Bool("json", false, "Print the analysis as JSON")
	return cmd
}

func newScreensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "screens <flows.yaml>...",
		Short: "List every screen with its subflow",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := flowconfig.LoadRegistry(args...)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "FLOW\tSCREEN\tSUBFLOW\tNEXT")
			for _, name := range registry.Names() {
				flow, err := registry.Flow(name)
				if err != nil {
					return err
				}
				for _, screen := range screenNames(flow) {
					sc := flow.Screens[screen]
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", name, screen, dash(sc.Subflow), len(sc.NextScreens))
				}
			}
			return tw.Flush()
		},
	}
}

func analyze(registry *flowconfig.Registry, name string) (*flowconfig.AnalysisResult, error) {
	flow, err := registry.Flow(name)
	if err != nil {
		return nil, err
	}
	return flowconfig.Analyze(flow), nil
}

// screenNames keeps the YAML order when the loader recorded it
func screenNames(flow *flowconfig.FlowConfig) []string {
	if len(flow.ScreenOrder) == len(flow.Screens) {
		return slices.Clone(flow.ScreenOrder)
	}
	names := make([]string, 0, len(flow.Screens))
	for name := range flow.Screens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeGraph(w io.Writer, result *flowconfig.AnalysisResult) error {
	st := newStyles(w)
	_, _ = fmt.Fprintf(w, "%s (start: %s, status: %s)\n",
		st.title.Render("flow "+result.Flow), result.StartScreen, st.status(result.ValidationStatus))
	for _, e := range result.Edges {
		if e.Condition != "" {
			_, _ = fmt.Fprintf(w, "  %s -> %s %s\n", e.From, e.To, st.condition.Render("["+e.Condition+"]"))
		} else {
			_, _ = fmt.Fprintf(w, "  %s -> %s\n", e.From, e.To)
		}
	}
	if len(result.TerminalScreens) > 0 {
		_, _ = fmt.Fprintf(w, "%s %v\n", st.dim.Render("terminal:"), result.TerminalScreens)
	}
	if len(result.UnreachableScreens) > 0 {
		_, _ = fmt.Fprintf(w, "%s %v\n", st.warning.Render("unreachable:"), result.UnreachableScreens)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
