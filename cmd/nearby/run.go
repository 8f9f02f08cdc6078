package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/proximity"
	"github.com/srg/nearby/internal/radio/goble"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// Calibrated readings at or above these are shown as near and mid range.
const (
	nearThreshold = -60
	midThreshold  = -80
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advertise, scan and report nearby peers",
		Long: `Run both Bluetooth roles until interrupted: advertise our payload, scan for
other nodes, exchange payloads and print a calibrated proximity reading
every time a peer is heard.`,
		Example: `  nearby run
  nearby run --identity 00112233445566778899aabbccddeeff --format json
  nearby run -c nearby.yaml --rx 6`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
	cmd.Flags().String("identity", "", "Identity to advertise, 16 bytes hex encoded (random when empty)")
	cmd.Flags().StringP("format", "f", formatTable, "Output format: table or json")
	cmd.Flags().Int8("tx", 0, "Override the config's tx compensation in dB")
	cmd.Flags().Int8("rx", 0, "Override the config's rx compensation in dB")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != formatTable && format != formatJSON {
		return fmt.Errorf("invalid format: %s (must be %s or %s)", format, formatTable, formatJSON)
	}

	identityHex, _ := cmd.Flags().GetString("identity")
	identity, err := parseIdentity(identityHex)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("tx") {
		cfg.TxCompensation, _ = cmd.Flags().GetInt8("tx")
	}
	if cmd.Flags().Changed("rx") {
		cfg.RxCompensation, _ = cmd.Flags().GetInt8("rx")
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	adapter := goble.NewAdapter(logger)
	co, err := proximity.New(opts,
		goble.NewCentral(adapter, logger),
		goble.NewPeripheral(adapter, cfg.DeviceName, logger),
		nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := co.Close(); err != nil {
			logger.WithError(err).Warn("Shutdown failed")
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := co.Start(func() ([]byte, bool) { return identity, true }); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"identity": hex.EncodeToString(identity),
		"service":  opts.Service,
	}).Info("Proximity detection started")

	printer := newEventPrinter(cmd.OutOrStdout(), format)
	for {
		select {
		case <-ctx.Done():
			if dropped := co.DroppedEvents(); dropped > 0 {
				logger.WithField("dropped", dropped).Warn("Events were dropped")
			}
			return nil
		case ev, ok := <-co.Events():
			if !ok {
				return nil
			}
			if err := printer.print(ev); err != nil {
				return err
			}
		}
	}
}

// parseIdentity decodes a hex identity, or returns a random one for "".
func parseIdentity(s string) ([]byte, error) {
	if s == "" {
		id := uuid.New()
		return id[:], nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != payload.IdentitySize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	return b, nil
}

type eventPrinter struct {
	out        io.Writer
	format     string
	headerDone bool
}

func newEventPrinter(out io.Writer, format string) *eventPrinter {
	return &eventPrinter{out: out, format: format}
}

type jsonEvent struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Peer       string    `json:"peer,omitempty"`
	Identity   string    `json:"identity,omitempty"`
	TxPower    *int8     `json:"tx_power,omitempty"`
	Raw        *int      `json:"raw_rssi,omitempty"`
	Calibrated *int      `json:"calibrated_rssi,omitempty"`
	State      string    `json:"state,omitempty"`
}

func (p *eventPrinter) print(ev proximity.Event) error {
	if p.format == formatJSON {
		return json.NewEncoder(p.out).Encode(toJSONEvent(ev))
	}
	return p.printRow(ev)
}

func toJSONEvent(ev proximity.Event) jsonEvent {
	switch e := ev.(type) {
	case proximity.ProximityUpdate:
		return jsonEvent{
			Type:       "proximity",
			Timestamp:  e.Timestamp,
			Peer:       e.PeerID.String(),
			Identity:   payload.IdentityKey(e.Payload),
			TxPower:    &e.TxPower,
			Raw:        &e.Raw,
			Calibrated: &e.Calibrated,
		}
	case proximity.StateChanged:
		return jsonEvent{Type: "state", Timestamp: e.Timestamp, State: e.State.String()}
	case proximity.ServiceNotFound:
		return jsonEvent{Type: "service_not_found", Timestamp: e.Timestamp, Peer: e.PeerID.String()}
	default:
		return jsonEvent{Type: "unknown"}
	}
}

// rowFormat keeps rows aligned while they stream; a tabwriter only aligns
// what it buffers.
const rowFormat = "%-8s  %-12s  %-36s  %4s  %4s  %s\n"

func (p *eventPrinter) printRow(ev proximity.Event) error {
	if !p.headerDone {
		if _, err := fmt.Fprintf(p.out, rowFormat, "TIME", "EVENT", "PEER", "TX", "RAW", "CALIBRATED"); err != nil {
			return err
		}
		p.headerDone = true
	}

	var err error
	switch e := ev.(type) {
	case proximity.ProximityUpdate:
		_, err = fmt.Fprintf(p.out, rowFormat, e.Timestamp.Format(time.TimeOnly), "proximity",
			payload.IdentityKey(e.Payload), fmt.Sprint(e.TxPower), fmt.Sprint(e.Raw), colorize(e.Calibrated))
	case proximity.StateChanged:
		_, err = fmt.Fprintf(p.out, rowFormat, e.Timestamp.Format(time.TimeOnly), "state", e.State, "", "", "")
	case proximity.ServiceNotFound:
		_, err = fmt.Fprintf(p.out, rowFormat, e.Timestamp.Format(time.TimeOnly), "incompatible", e.PeerID, "", "", "")
	}
	return err
}

func colorize(calibrated int) string {
	text := fmt.Sprintf("%d", calibrated)
	switch {
	case calibrated >= nearThreshold:
		return color.GreenString(text)
	case calibrated >= midThreshold:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}
