package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/proximity"
	"github.com/srg/nearby/internal/radio"
	"github.com/stretchr/testify/suite"
)

type RunCommandSuite struct {
	CommandTestSuite
}

var (
	testIdentity = []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	testTime     = time.Date(2025, 1, 1, 12, 30, 5, 0, time.UTC)
	testPeer     = uuid.MustParse("6f1c2b9e-4b1e-4c55-9d0e-2f7d4c1a0b01")
)

func (s *RunCommandSuite) update(calibrated int) proximity.ProximityUpdate {
	p, err := payload.New(testIdentity, 14)
	s.Require().NoError(err)
	return proximity.ProximityUpdate{
		PeerID:     testPeer,
		Payload:    p,
		Timestamp:  testTime,
		Calibrated: calibrated,
		Raw:        calibrated + 14,
		TxPower:    14,
	}
}

func (s *RunCommandSuite) TestRejectsInvalidFormat() {
	_, err := s.ExecuteCommand("run", "--format", "xml")
	s.ErrorContains(err, "invalid format")
}

func (s *RunCommandSuite) TestRejectsInvalidIdentity() {
	for _, id := range []string{"zz", "0011", strings.Repeat("ab", 17)} {
		_, err := s.ExecuteCommand("run", "--identity", id)
		s.ErrorIs(err, ErrInvalidIdentity, "identity %q", id)
	}
}

func (s *RunCommandSuite) TestRejectsInvalidConfig() {
	path := s.WriteConfig("service_uuid: not-a-uuid\n")
	_, err := s.ExecuteCommand("run", "-c", path)
	s.Error(err)
}

func (s *RunCommandSuite) TestParseIdentity() {
	id, err := parseIdentity("00112233445566778899aabbccddeeff")
	s.Require().NoError(err)
	s.Equal(testIdentity, id)

	id, err = parseIdentity("0x00112233445566778899AABBCCDDEEFF")
	s.Require().NoError(err)
	s.Equal(testIdentity, id)

	a, err := parseIdentity("")
	s.Require().NoError(err)
	b, err := parseIdentity("")
	s.Require().NoError(err)
	s.Len(a, payload.IdentitySize)
	s.NotEqual(a, b, "random identities MUST differ")
}

func (s *RunCommandSuite) TestTableOutput() {
	var out bytes.Buffer
	printer := newEventPrinter(&out, formatTable)

	s.Require().NoError(printer.print(proximity.StateChanged{State: radio.StatePoweredOn, Timestamp: testTime}))
	s.Require().NoError(printer.print(s.update(-94)))
	s.Require().NoError(printer.print(proximity.ServiceNotFound{PeerID: testPeer, Timestamp: testTime}))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	s.Require().Len(lines, 4, "header plus one row per event")
	s.Contains(lines[0], "CALIBRATED")
	s.Contains(lines[1], "state")
	s.Contains(lines[2], "00112233445566778899aabbccddeeff")
	s.Contains(lines[2], "-94")
	s.Contains(lines[3], testPeer.String())
	s.True(strings.HasPrefix(lines[2], "12:30:05"))
}

func (s *RunCommandSuite) TestJSONOutput() {
	var out bytes.Buffer
	printer := newEventPrinter(&out, formatJSON)

	s.Require().NoError(printer.print(s.update(-70)))
	s.Require().NoError(printer.print(proximity.StateChanged{State: radio.StatePoweredOff, Timestamp: testTime}))

	dec := json.NewDecoder(&out)
	var first, second map[string]any
	s.Require().NoError(dec.Decode(&first))
	s.Require().NoError(dec.Decode(&second))

	s.Equal("proximity", first["type"])
	s.Equal(testPeer.String(), first["peer"])
	s.Equal("00112233445566778899aabbccddeeff", first["identity"])
	s.EqualValues(-70, first["calibrated_rssi"])
	s.EqualValues(-56, first["raw_rssi"])
	s.EqualValues(14, first["tx_power"])

	s.Equal("state", second["type"])
	s.Equal(radio.StatePoweredOff.String(), second["state"])
	s.NotContains(second, "calibrated_rssi")
}

func (s *RunCommandSuite) TestColorizeThresholds() {
	s.Equal("-50", colorize(-50))
	s.Equal("-80", colorize(-80))
	s.Equal("-81", colorize(-81))
}

func TestRunCommandSuite(t *testing.T) {
	suite.Run(t, new(RunCommandSuite))
}
