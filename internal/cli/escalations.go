// README: limoctl escalations list|ack over the escalation outbox.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"relialimo/internal/modules/farmout"
)

func newEscalationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "Inspect escalations waiting for delivery",
	}
	cmd.AddCommand(newEscalationsListCmd())
	cmd.AddCommand(newEscalationsAckCmd())
	return cmd
}

func newEscalationsListCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "list",
		Short: "List undelivered escalations, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), needs{db: true})
			if err != nil {
				return err
			}
			defer e.close()

			outbox := farmout.NewEscalationOutbox(e.db, e.log, e.cfg.Farmout.StepTimeout)
			pending, err := outbox.Pending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, okColor.Sprint("no pending escalations"))
				return nil
			}
			for _, p := range pending {
				labels := make([]string, len(p.Recipients))
				for i, r := range p.Recipients {
					labels[i] = r.Label()
				}
				fmt.Fprintf(out, "%s %s\n  %s\n  %s %s\n",
					labelColor.Sprint(p.ID),
					p.CreatedAt.Local().Format("Jan 2 15:04"),
					p.Summary,
					warnColor.Sprint("to:"),
					strings.Join(labels, ", "))
			}
			return nil
		},
	}
	c.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return c
}

func newEscalationsAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <escalation-id>...",
		Short: "Mark escalations as delivered",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), needs{db: true})
			if err != nil {
				return err
			}
			defer e.close()

			outbox := farmout.NewEscalationOutbox(e.db, e.log, e.cfg.Farmout.StepTimeout)
			for _, id := range args {
				ok, err := outbox.MarkDelivered(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("ack %s: %w", id, err)
				}
				if ok {
					cmd.Println(okColor.Sprintf("delivered %s", id))
				} else {
					cmd.Println(warnColor.Sprintf("%s not pending", id))
				}
			}
			return nil
		},
	}
}
