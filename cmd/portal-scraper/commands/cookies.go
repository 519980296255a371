package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/auth"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cookiesCmd)
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies <portal>",
	Short: "Shows which cookies would be imported for a portal without contacting it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portal, err := cfg.Portal(args[0])
		if err != nil {
			return err
		}
		src, err := portal.CookieSource()
		if err != nil {
			return err
		}
		session, err := auth.ImportSession(src)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDOMAIN\tPATH\tEXPIRES")
		for _, c := range session.Cookies {
			expires := "session"
			if !c.Expires.IsZero() {
				expires = c.Expires.Format(time.RFC3339)
				if c.Expires.Before(time.Now()) {
					expires += " (expired)"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Domain, c.Path, expires)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d cookies would be imported for %s\n", len(session.Cookies), portal.Name)
		return nil
	},
}
