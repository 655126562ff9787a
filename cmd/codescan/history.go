package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/codescan/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear recorded scans",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		scans, err := st.Scans().List(cmd.Context(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(scans) == 0 {
			fmt.Fprintln(out, "No scans recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SCANNED\tTYPE\tDEVICE\tCONTENT")
		fmt.Fprintln(w, "-------\t----\t------\t-------")
		for _, s := range scans {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ScannedAt.Local().Format("2006-01-02 15:04:05"), s.Type, s.Device, s.Content)
		}
		return w.Flush()
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every recorded scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.Scans().DeleteAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d scans.\n", n)
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().String("db", "", "sqlite file or postgres:// URL (default from config)")
	historyListCmd.Flags().Int("limit", store.DefaultListLimit, "maximum number of scans to show")

	historyCmd.AddCommand(historyListCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory(cmd *cobra.Command) (*store.Store, error) {
	overrideString(cmd, "db", &cfg.DSN)
	if cfg.DSN == "" {
		return nil, errors.New("no scan history configured; set --db or dsn in the config file")
	}
	st, err := store.New(cmd.Context(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan history: %w", err)
	}
	return st, nil
}
