package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smallnest/reelgraph/app"
	"github.com/smallnest/reelgraph/graph"
	"github.com/smallnest/reelgraph/workflow"
)

const defaultTopic = "latest AI breakthrough"

func newRunCommand(ctx *commandContext) *cobra.Command {
	var components []string
	var htmlPath string
	var trace bool

	cmd := &cobra.Command{
		Use:   "run [topic...]",
		Short: "Run the production workflow for a topic",
		Long: `Run the production workflow for a topic.

Without a topic argument the topic is read from stdin; an empty answer uses
"` + defaultTopic + `". With --component only the named nodes run, in the
given order, against a fresh state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			topic := strings.TrimSpace(strings.Join(args, " "))
			if topic == "" {
				topic = promptTopic(cmd.InOrStdin(), cmd.OutOrStdout())
			}

			logger, err := app.NewLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			var opts []app.Option
			var tracer *graph.Tracer
			if trace {
				tracer = graph.NewTracer()
				opts = append(opts, app.WithTracer(tracer))
			}
			a, err := app.Open(cmd.Context(), cfg, components, logger, opts...)
			if err != nil {
				return err
			}
			defer a.Close()

			var res *graph.Result[workflow.State]
			var runErr error
			if len(components) > 0 {
				res, runErr = a.Workflow.RunComponents(cmd.Context(), topic, components)
			} else {
				res, runErr = a.Workflow.Run(cmd.Context(), topic)
			}
			if res == nil {
				return runErr
			}

			renderResult(cmd.OutOrStdout(), res)
			if tracer != nil {
				renderTrace(cmd.OutOrStdout(), tracer.NodeSpans())
			}
			if htmlPath != "" {
				if err := writeHTML(htmlPath, res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Summary written to %s\n", htmlPath)
			}
			return runErr
		},
	}
	cmd.Flags().StringArrayVar(&components, "component", nil, "Run only this node (repeatable, in order)")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Write the run summary as HTML to this file")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print node timings and attempts after the run")
	return cmd
}

func promptTopic(in io.Reader, out io.Writer) string {
	fmt.Fprintf(out, "Topic [%s]: ", defaultTopic)
	line, _ := bufio.NewReader(in).ReadString('\n')
	if topic := strings.TrimSpace(line); topic != "" {
		return topic
	}
	return defaultTopic
}

func writeHTML(path string, res *graph.Result[workflow.State]) error {
	md := res.State.Summary
	if md == "" {
		md = workflow.Summarize(res.State, res.Elapsed)
	}
	page, err := workflow.RenderHTML("reelgraph: "+res.State.Topic, md)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
