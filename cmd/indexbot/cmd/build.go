package cmd

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/index"
	"github.com/aissist/indexbot/internal/output"
	"github.com/aissist/indexbot/internal/project"
	"github.com/aissist/indexbot/internal/ui"
)

func newBuildCmd(g *globalFlags) *cobra.Command {
	var (
		noTUI      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"reindex"},
		Short:   "Rebuild the index from input/",
		Long: `Rebuild the index from every document under input/.

Documents that fail to load are reported and left out; the rest are
indexed. The new index replaces the previous one only once it is fully
written, so questions keep being answered from the old index meanwhile.
An empty input/ leaves any existing index untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var renderer ui.Renderer = ui.NopRenderer{}
			if !jsonOutput {
				renderer = ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
					ui.WithForcePlain(noTUI),
					ui.WithNoColor(ui.DetectNoColor())))
			}

			p, err := g.openProject(renderer)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			return runBuild(cmd.Context(), p, renderer, cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the build report as JSON")

	return cmd
}

func runBuild(ctx context.Context, p *project.Project, renderer ui.Renderer, w io.Writer, jsonOutput bool) error {
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	rep, err := p.BuildIndex(ctx)
	_ = renderer.Stop()

	if err != nil && !errors.Is(err, apperrors.ErrEmptyCorpus) {
		return err
	}
	if jsonOutput {
		return output.New(w).JSON(rep)
	}
	printReport(output.New(w), rep)
	return nil
}

// printReport prints the build summary and the files left out.
func printReport(out *output.Writer, rep *index.Report) {
	if rep == nil {
		return
	}
	switch {
	case rep.Outcome == index.OutcomeEmptyCorpus:
		out.Warning(rep.Summary())
	case len(rep.Failures) > 0:
		out.Warning(rep.Summary())
	default:
		out.Success(rep.Summary())
	}
	for _, f := range rep.Failures {
		out.Statusf("", "failed: %s: %s", f.Path, f.Detail)
	}
	for _, s := range rep.Skipped {
		out.Statusf("", "skipped: %s: %s", s.Path, s.Detail)
	}
}
