package cmd

import (
	"github.com/spf13/cobra"

	"github.com/aissist/indexbot/internal/ui"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the project's index:
  - State (not built, building, ready) and build id
  - Number of indexed documents and nodes
  - Embedding model and dimensions the index was built with
  - Last build time and size on disk
  - Configured embedder and language model`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := g.openProject(ui.NopRenderer{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			info := p.Status(cmd.Context())
			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
			if jsonOutput {
				return renderer.RenderJSON(info)
			}
			return renderer.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
