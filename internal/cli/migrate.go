// README: limoctl migrate.
package cli

import (
	"github.com/spf13/cobra"

	"relialimo/internal/infra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), needs{db: true})
			if err != nil {
				return err
			}
			defer e.close()
			if err := infra.Migrate(cmd.Context(), e.db); err != nil {
				return err
			}
			cmd.Println(okColor.Sprint("schema up to date"))
			return nil
		},
	}
}
