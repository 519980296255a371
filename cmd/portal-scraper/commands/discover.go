package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var discoverFlags struct {
	cookies bool
	out     string
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverFlags.cookies, "cookies", false, "start from imported cookies instead of logging in")
	discoverCmd.Flags().StringVarP(&discoverFlags.out, "out", "o", "", "write the dump to this file instead of stdout")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover <portal>",
	Short: "Logs in and dumps forms, inputs and product card candidates of the portal's entry page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dump, err := newRunner().Discover(cmd.Context(), args[0], discoverFlags.cookies)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			return err
		}

		if discoverFlags.out == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(discoverFlags.out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write dump: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d forms, %d inputs and %d card candidates to %s\n",
			len(dump.Forms), len(dump.Inputs), len(dump.Cards), discoverFlags.out)
		return nil
	},
}
