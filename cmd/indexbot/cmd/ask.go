package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aissist/indexbot/internal/output"
	"github.com/aissist/indexbot/internal/ui"
)

func newAskCmd(g *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "ask <question>",
		Aliases: []string{"query"},
		Short:   "Answer a question from the indexed documents",
		Long: `Answer a question using the passages of the indexed documents that are
most similar to it. The index is built first if none exists yet.`,
		Example: `  indexbot ask "What is the notice period in the lease?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.openProject(ui.NopRenderer{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			res, err := p.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(res)
			}
			out.Answer(res.Answer, res.Sources)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the answer and retrieved nodes as JSON")

	return cmd
}

func newChatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <text>",
		Short: "Talk to the language model without using the documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.openProject(ui.NopRenderer{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			answer, err := p.Chat(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Answer(answer, nil)
			return nil
		},
	}
}
