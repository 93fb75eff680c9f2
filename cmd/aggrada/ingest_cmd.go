package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/aggrada/internal/config"
	"github.com/JonMunkholm/aggrada/internal/ingest"
)

type ingestOptions struct {
	JobPath   string
	File      string
	Outsource string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest --job <job.yaml> [--file <path>]",
		Short: "Run an ingestion job and print its metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			job, err := config.LoadJob(opts.JobPath, &cfg.Ingest)
			if err != nil {
				return err
			}
			if opts.File != "" {
				job.File = opts.File
			}
			if opts.Outsource != "" {
				job.Outsource = opts.Outsource
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			pipeline, _ := newPipeline(cfg, st, nil)
			m, runErr := pipeline.RunFile(ctx, job)
			if m.RunID != "" {
				if err := printJSON(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			if runErr != nil {
				msg := ingest.MapError(runErr)
				cmd.PrintErrf("%s (%s): %s\n", msg.Message, msg.Code, msg.Action)
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.JobPath, "job", "", "job file (YAML)")
	cmd.Flags().StringVar(&opts.File, "file", "", "input file, overriding the job's file")
	cmd.Flags().StringVar(&opts.Outsource, "outsource", "", "outsourced provider, overriding the job's (ibge, cepaberto)")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
