package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aissist/indexbot/internal/output"
	"github.com/aissist/indexbot/internal/project"
	"github.com/aissist/indexbot/internal/ui"
)

func newDocsCmd(g *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List the documents in input/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := g.openProject(ui.NopRenderer{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			docs, err := p.Documents(cmd.Context())
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				if docs == nil {
					docs = []string{}
				}
				return out.JSON(docs)
			}
			if len(docs) == 0 {
				out.Status("", "No documents in "+p.Config().InputDir())
				return nil
			}
			out.Pages(output.Paginate(docs, output.PageLimit))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the list as JSON")

	return cmd
}

func newAddCmd(g *globalFlags) *cobra.Command {
	var noBuild bool

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Copy documents into input/ and rebuild the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.openProject(ui.NopRenderer{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			out := output.New(cmd.OutOrStdout())
			for _, path := range args {
				name, err := storeFile(p, path)
				if err != nil {
					return err
				}
				out.Statusf("📄", "Added %s", name)
			}
			if noBuild {
				return nil
			}
			return runBuild(cmd.Context(), p, ui.NopRenderer{}, cmd.OutOrStdout(), false)
		},
	}

	cmd.Flags().BoolVar(&noBuild, "no-build", false, "Only copy the files, do not rebuild")

	return cmd
}

func storeFile(p *project.Project, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}
	return p.StoreDocument(path, f)
}
