package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/nearby/internal/proximity"
	"github.com/srg/nearby/internal/radio"
)

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrate a raw RSSI reading",
		Long: fmt.Sprintf(`Apply the proximity calibration to one raw RSSI reading.

Local readings are corrected by the peer's tx power and our rx compensation;
peer-reported readings by our tx compensation. A raw value of %d means the
reading is unavailable.`, radio.RSSIUnavailable),
		Example: `  nearby calibrate --raw -60 --peer-tx 14 --rx 20
  nearby calibrate --raw -60 --tx 10 --peer-reported`,
		Args: cobra.NoArgs,
		RunE: runCalibrate,
	}
	cmd.Flags().Int("raw", radio.RSSIUnavailable, "Raw RSSI in dBm")
	cmd.Flags().Int8("peer-tx", 0, "Peer tx power from its payload")
	cmd.Flags().Int8("rx", 0, "Local rx compensation in dB")
	cmd.Flags().Int8("tx", 0, "Local tx compensation in dB")
	cmd.Flags().Bool("peer-reported", false, "The reading was measured by the peer")
	return cmd
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetInt("raw")
	peerTx, _ := cmd.Flags().GetInt8("peer-tx")
	rx, _ := cmd.Flags().GetInt8("rx")
	tx, _ := cmd.Flags().GetInt8("tx")
	peerReported, _ := cmd.Flags().GetBool("peer-reported")

	source := proximity.SourceLocal
	if peerReported {
		source = proximity.SourcePeerReported
	}

	out := cmd.OutOrStdout()
	calibrated, ok := proximity.Calibrate(raw, source, peerTx, rx, tx)
	if !ok {
		_, err := fmt.Fprintln(out, "RSSI unavailable")
		return err
	}
	_, err := fmt.Fprintf(out, "%d dBm (%s reading, raw %d)\n", calibrated, source, raw)
	return err
}
