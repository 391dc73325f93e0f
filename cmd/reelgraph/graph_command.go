package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smallnest/reelgraph/workflow"
)

func newGraphCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:         "graph",
		Short:       "Print the workflow as a Mermaid flowchart or a Graphviz digraph",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := workflow.New(workflow.Collaborators{}, workflow.DefaultOptions())
			if err != nil {
				return err
			}
			switch format {
			case "mermaid":
				fmt.Fprint(cmd.OutOrStdout(), w.Mermaid())
			case "dot":
				fmt.Fprint(cmd.OutOrStdout(), w.DOT())
			default:
				return fmt.Errorf("unknown graph format %q (want mermaid or dot)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "mermaid", "output format: mermaid or dot")
	return cmd
}
