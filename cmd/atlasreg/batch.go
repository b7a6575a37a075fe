package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"atlasreg/pkg/atlas"
	"atlasreg/pkg/batch"
)

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Register every subject of a subject list",
		Long: `batch reads a YAML subject list and registers the subjects concurrently,
each into <outroot>/<id>. The viewer is never launched. The first failing
subject stops the batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			listPath, _ := cmd.Flags().GetString("subjects")
			outRoot, _ := cmd.Flags().GetString("outroot")

			subjects, err := batch.LoadSubjects(listPath)
			if err != nil {
				return err
			}
			assets, err := atlas.Resolve(a.cfg.Assets)
			if err != nil {
				return err
			}

			a.log.WithField("subjects", len(subjects)).
				WithField("jobs", a.cfg.Batch.Jobs).
				Info("starting batch")

			outcomes, err := batch.Run(cmd.Context(), subjects, batch.Options{
				OutRoot: outRoot,
				Config:  a.cfg,
				Assets:  assets,
				Jobs:    a.cfg.Batch.Jobs,
			}, a.deps())

			out := cmd.OutOrStdout()
			for _, o := range outcomes {
				if o.Err != nil {
					fmt.Fprintf(out, "%-12s FAILED  %v\n", o.Subject.ID, o.Err)
					continue
				}
				fmt.Fprintf(out, "%-12s ok      %s\n", o.Subject.ID, o.Result.LabelsInSubject.Path)
			}
			return err
		},
	}

	cmd.Flags().String("subjects", "", "YAML subject list")
	cmd.Flags().String("outroot", "", "directory receiving one output directory per subject")
	cmd.Flags().Int("jobs", 0, "subjects registered concurrently (default: number of CPUs)")
	_ = cmd.MarkFlagRequired("subjects")
	_ = cmd.MarkFlagRequired("outroot")
	_ = a.v.BindPFlag("batch.jobs", cmd.Flags().Lookup("jobs"))

	return cmd
}
