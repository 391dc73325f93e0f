package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/monitor"
)

func newCheckAllCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check-all",
		Short: `Check every "Assets Ready" project for an uploaded video`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				reports, err := m.CheckAll(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(reports) == 0 {
					fmt.Fprintf(out, "No projects with status %q\n", content.StatusAssetsReady)
					return nil
				}
				rows := make([][]string, 0, len(reports))
				for _, r := range reports {
					rows = append(rows, reportRow(r))
				}
				fmt.Fprintln(out, renderTable([]string{"Project", "Status", "Videos", "Result"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func reportRow(r monitor.Report) []string {
	result := "waiting for video"
	switch {
	case r.Err != nil:
		result = "error: " + r.Err.Error()
	case r.Updated:
		result = "marked " + content.StatusVideoReady
	}
	name := r.Project.Name
	if name == "" {
		name = r.Project.FolderPath
	}
	return []string{name, r.Project.Status, strconv.Itoa(len(r.Videos)), result}
}

func newMonitorCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <project>",
		Short: "Check one project's final_draft folder for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				r, err := m.Check(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case r.Updated:
					fmt.Fprintf(out, "Video %s detected in %s; marked %s\n", r.Videos[0].Name, r.Folder.Path, content.StatusVideoReady)
				case len(r.Videos) > 0:
					fmt.Fprintf(out, "Video %s already recorded for %s\n", r.Videos[0].Name, r.Folder.Path)
				default:
					fmt.Fprintf(out, "No video in %s/%s yet\n", r.Folder.Path, content.FolderFinalDraft)
				}
				return nil
			})
		},
	}
}

func newUpdateCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "update <project> [video]",
		Short: `Mark a project "Video Ready"`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			video := ""
			if len(args) == 2 {
				video = args[1]
			}
			return c.withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				p, err := m.Update(ctx, args[0], video)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s marked %s (%s)\n", p.FolderPath, p.Status, p.VideoFile)
				return nil
			})
		},
	}
}

func newSummaryCommand(c *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <project>",
		Short: "List the contents of a project folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				folder, summaries, err := m.Summary(ctx, args[0])
				if err != nil {
					return err
				}
				var rows [][]string
				total := 0
				for _, s := range summaries {
					if len(s.Files) == 0 {
						rows = append(rows, []string{s.Name, "-", "-"})
						continue
					}
					for _, f := range s.Files {
						rows = append(rows, []string{s.Name, f.Name, string(f.Kind)})
						total++
					}
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Project %s (%d files)\n", folder.Path, total)
				fmt.Fprintln(out, renderTable([]string{"Folder", "File", "Kind"}, rows, nil))
				return nil
			})
		},
	}
}
