package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mentorgraph/internal/seed"
)

func newSeedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write demo profiles, postings and a session",
		Long: `Seed writes a small demo data set through the same operations the API uses.
Ledger failures are retried with exponential backoff.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := wireApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := seed.New(a.service, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			sum, err := s.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d records in space %s (%d retries)\n",
				color.New(color.FgGreen, color.Bold).Sprint("seeded"), sum.Created, cfg.SpaceID, sum.Retries)
			return nil
		},
	}
}
