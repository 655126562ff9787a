package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/codescan/internal/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List camera devices that can be opened",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("max")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if n <= 0 {
			return errors.New("--max must be positive")
		}

		ids := make([]int, n)
		for i := range ids {
			ids[i] = i
		}

		opener := capture.NewOpener(capture.GoCVFactory(captureSettings()), logger)
		results := capture.Probe(cmd.Context(), opener, ids, timeout)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "INDEX\tSTATUS\tRESOLUTION\tERROR")
		fmt.Fprintln(w, "-----\t------\t----------\t-----")
		for _, r := range results {
			status, resolution, errText := "unavailable", "-", ""
			if r.Available {
				status = "available"
				if r.Width > 0 {
					resolution = fmt.Sprintf("%dx%d", r.Width, r.Height)
				}
			}
			if r.Err != nil {
				errText = r.Err.Error()
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Device, status, resolution, errText)
		}
		return w.Flush()
	},
}

func init() {
	devicesCmd.Flags().Int("max", 8, "number of device indices to probe, starting at 0")
	devicesCmd.Flags().Duration("timeout", 3*time.Second, "how long to wait for each device")
	rootCmd.AddCommand(devicesCmd)
}
