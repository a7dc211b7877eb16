package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/output"
	"github.com/aissist/indexbot/internal/ui"
	"github.com/aissist/indexbot/internal/watcher"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var polling bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the index whenever input/ changes",
		Long: `Watch input/ and rebuild the index after documents are added, changed
or removed. Changes are debounced (watch.debounce, default 2s) so copying a
batch of files triggers one rebuild. An index is built at start if none
exists. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := g.openProject(ui.NopRenderer{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			out := output.New(cmd.OutOrStdout())
			rep, err := p.EnsureIndex(ctx)
			if err != nil && !errors.Is(err, apperrors.ErrEmptyCorpus) {
				return err
			}
			printReport(out, rep)

			w, err := watcher.NewHybridWatcher(watcher.Options{
				DebounceWindow: p.Config().DebounceInterval(),
				ForcePolling:   polling,
			})
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			go func() {
				for err := range w.Errors() {
					slog.Warn("watcher_error", slog.String("error", err.Error()))
				}
			}()

			out.Statusf("👀", "Watching %s (%s)", p.Config().InputDir(), w.Type())
			err = watcher.Watch(ctx, w, p.Config().InputDir(), func(ctx context.Context, _ []watcher.FileEvent) error {
				rep, err := p.BuildIndex(ctx)
				printReport(out, rep)
				if errors.Is(err, apperrors.ErrEmptyCorpus) {
					return nil
				}
				if err != nil {
					out.Error(err.Error())
				}
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&polling, "poll", false, "Poll instead of using file system notifications")

	return cmd
}
