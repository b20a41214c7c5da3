// README: limoctl settings show|set.
package cli

import (
	"github.com/spf13/cobra"

	"relialimo/internal/modules/directory"
	"relialimo/internal/modules/farmout"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the farm-out automation settings",
	}
	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the persisted settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), needs{redis: true})
			if err != nil {
				return err
			}
			defer e.close()

			svc := farmout.NewService(farmout.Deps{
				Settings: farmout.NewRedisStore(e.redis, e.cfg.Farmout.SettingsKey),
				Log:      e.log,
			})
			defer svc.Close()
			printSettings(cmd.OutOrStdout(), svc.LoadSettings(cmd.Context()))
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var (
		interval   string
		recipients string
	)
	c := &cobra.Command{
		Use:   "set",
		Short: "Update the interval and/or recipients",
		Long: "Update the dispatch interval (1-60 minutes) and/or the escalation recipients.\n" +
			"An invalid interval keeps the current value. Recipients are separated by commas or\n" +
			"newlines; \"identifier|phone\" overrides the phone. Identifiers are resolved against\n" +
			"the user directory. Running API servers pick up the change at their next offer or\n" +
			"escalation step; other fields of the record are preserved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			changeInterval := cmd.Flags().Changed("interval")
			changeRecipients := cmd.Flags().Changed("recipients")
			if !changeInterval && !changeRecipients {
				return cmd.Usage()
			}
			e, err := open(cmd.Context(), needs{db: changeRecipients, redis: true})
			if err != nil {
				return err
			}
			defer e.close()

			deps := farmout.Deps{
				Settings: farmout.NewRedisStore(e.redis, e.cfg.Farmout.SettingsKey),
				Log:      e.log,
			}
			if e.db != nil {
				deps.Directory = directory.NewService(directory.NewStore(e.db), e.log)
			}
			svc := farmout.NewService(deps)
			defer svc.Close()
			s := svc.LoadSettings(cmd.Context())

			if changeInterval {
				if s, err = svc.EditInterval(cmd.Context(), interval); err != nil {
					return err
				}
			}
			if changeRecipients {
				if s, err = svc.UpdateSettings(cmd.Context(), farmout.SettingsUpdate{Recipients: &recipients}); err != nil {
					return err
				}
			}
			printSettings(cmd.OutOrStdout(), s)
			return nil
		},
	}
	c.Flags().StringVar(&interval, "interval", "", "dispatch interval in minutes (1-60)")
	c.Flags().StringVar(&recipients, "recipients", "", "escalation recipients")
	return c
}
