// README: limoctl activity <reservation-id>.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"relialimo/internal/modules/farmout"
	"relialimo/internal/types"
)

func newActivityCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "activity <reservation-id>",
		Short: "Print the farm-out activity log of a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), needs{db: true})
			if err != nil {
				return err
			}
			defer e.close()

			entries, err := farmout.NewActivityStore(e.db, e.log).List(cmd.Context(), types.ID(args[0]), limit)
			if err != nil {
				return err
			}
			for _, a := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", labelColor.Sprint(a.CreatedAt.Local().Format("Jan 2 15:04:05")), a.Message)
			}
			return nil
		},
	}
	c.Flags().IntVar(&limit, "limit", 100, "maximum entries")
	return c
}
