package cmd

import (
	"github.com/spf13/cobra"

	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/output"
	"github.com/aissist/indexbot/internal/preflight"
)

type doctorReport struct {
	Project string                  `json:"project"`
	Status  string                  `json:"status"`
	Checks  []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(g *globalFlags) *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics before building or querying a project.

Checks:
  - Free disk space and write access under the project base
  - File descriptor limit (used by 'indexbot watch')
  - Documents waiting in input/
  - Ollama reachable, with the language and embedding models installed
  - antiword installed for legacy .doc files

Missing antiword or an empty input/ are warnings. With --offline the
embedding model is not looked up.`,
		Example: `  indexbot doctor
  indexbot doctor --verbose
  indexbot doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			checker := preflight.New(cfg,
				preflight.WithOffline(g.offline),
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()))
			results := checker.RunAll(cmd.Context())

			if jsonOutput {
				err = output.New(cmd.OutOrStdout()).JSON(doctorReport{
					Project: cfg.Project.Name,
					Status:  checker.SummaryStatus(results),
					Checks:  results,
				})
				if err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return apperrors.New(apperrors.ErrCodeInternal, "system check failed", nil).
					WithSuggestion("Fix the failed checks above and run 'indexbot doctor' again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
