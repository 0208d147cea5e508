package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmi-protocol/qmi-go/pkg/config"
	"github.com/qmi-protocol/qmi-go/pkg/ctl"
	"github.com/qmi-protocol/qmi-go/pkg/device"
	"github.com/qmi-protocol/qmi-go/pkg/transport"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

func TestParseTLVs(t *testing.T) {
	tlvs, err := parseTLVs([]string{"0x01=0a0b", "16=01:02:03", "2="})
	require.NoError(t, err)
	assert.Equal(t, []wire.TLV{
		{Type: 0x01, Value: []byte{0x0a, 0x0b}},
		{Type: 0x10, Value: []byte{0x01, 0x02, 0x03}},
		{Type: 0x02, Value: []byte{}},
	}, tlvs)

	for _, bad := range []string{"01", "0x100=00", "x=00", "1=0g", "1=abc"} {
		_, err := parseTLVs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseSendArgs(t *testing.T) {
	r, err := parseSendArgs([]string{"dms", "0x0021", "0x10=01"})
	require.NoError(t, err)
	assert.Equal(t, wire.ServiceDMS, r.service)
	assert.Equal(t, uint16(0x0021), r.messageID)
	assert.Len(t, r.tlvs, 1)

	r, err = parseSendArgs([]string{"2", "33"})
	require.NoError(t, err)
	assert.Equal(t, wire.ServiceDMS, r.service)
	assert.Equal(t, uint16(33), r.messageID)
	assert.Empty(t, r.tlvs)

	_, err = parseSendArgs([]string{"dms"})
	assert.Error(t, err)
	_, err = parseSendArgs([]string{"ctl", "0x0022"})
	assert.Error(t, err)
	_, err = parseSendArgs([]string{"nope", "1"})
	assert.Error(t, err)
	_, err = parseSendArgs([]string{"wds", "0x10000"})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"version-info", "sync"}, splitList(" version-info, ,sync "))
	assert.Nil(t, splitList(""))
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qmi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: /dev/cdc-wdm1\nlogLevel: warn\ntimeouts:\n  command: 7\n"), 0o600))

	o := Options{ConfigFile: path, Device: "/dev/cdc-wdm2", Timeout: 3, Open: "sync"}
	cfg, err := loadConfig(o, map[string]bool{"device": true, "open": true})
	require.NoError(t, err)
	assert.Equal(t, "/dev/cdc-wdm2", cfg.Device)
	assert.Equal(t, []string{"sync"}, cfg.Open)
	assert.Equal(t, "warn", cfg.LogLevel)
	// -timeout was not given, so the file wins.
	assert.Equal(t, uint(7), cfg.Timeouts.Command)
}

func TestCheckOptionsClientID(t *testing.T) {
	for _, id := range []int{-1, 0, 7, 255} {
		assert.NoError(t, checkOptions(Options{ClientID: id}), id)
	}
	for _, id := range []int{-2, 256, 263} {
		assert.Error(t, checkOptions(Options{ClientID: id}), id)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := loadConfig(Options{Open: "bogus"}, map[string]bool{"open": true})
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = loadConfig(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	var le *config.LoadError
	assert.ErrorAs(t, err, &le)
}

// modem answers the few requests the command tests issue.
func modem(t *testing.T, tr transport.Transport) {
	t.Helper()
	framer := transport.NewFramer(tr, transport.FramerConfig{})
	go func() {
		for {
			frame, err := framer.ReadFrame()
			if err != nil {
				return
			}
			req, err := wire.Decode(frame)
			if err != nil {
				continue
			}
			var tlvs []wire.TLV
			switch {
			case req.Service() == wire.ServiceCTL && req.MessageID() == wire.MessageCTLGetVersionInfo:
				tlv, _ := ctl.EncodeVersionInfo([]ctl.ServiceVersion{
					{Service: wire.ServiceCTL, Major: 1, Minor: 5},
					{Service: wire.ServiceDMS, Major: 1, Minor: 14},
				})
				tlvs = append(tlvs, tlv)
			case req.Service() == wire.ServiceCTL && req.MessageID() == wire.MessageCTLAllocateCID:
				v, _ := req.TLV(0x01)
				tlvs = append(tlvs, wire.TLV{Type: 0x01, Value: []byte{v[0], 7}})
			case req.Service() == wire.ServiceCTL && req.MessageID() == wire.MessageCTLReleaseCID:
				v, _ := req.TLV(0x01)
				tlvs = append(tlvs, wire.TLV{Type: 0x01, Value: v})
			case req.Service() == wire.ServiceDMS:
				tlvs = append(tlvs, wire.TLV{Type: 0x01, Value: []byte("ACME")})
			}
			tlvs = append([]wire.TLV{wire.ResultTLV(wire.ProtocolErrorNone)}, tlvs...)
			resp, err := wire.NewResponse(req.Service(), req.ClientID(), req.TransactionID(), req.MessageID(), tlvs...)
			if err != nil {
				continue
			}
			if err := framer.WriteFrame(resp.Bytes()); err != nil {
				return
			}
		}
	}()
}

func newTestCLI(t *testing.T) (*CLI, *bytes.Buffer) {
	t.Helper()
	host, far := transport.Pipe("/dev/cdc-wdm0")
	modem(t, far)
	t.Cleanup(func() { far.Close() })

	dev, err := device.New(host, device.DefaultConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, dev.Open(ctx, 0, time.Second))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		dev.Close(ctx)
	})

	var out bytes.Buffer
	return &CLI{dev: dev, out: &out, timeout: time.Second, print: wire.PrintOptions{}}, &out
}

func TestExecVersionInfo(t *testing.T) {
	cli, out := newTestCLI(t)
	require.NoError(t, cli.Exec(context.Background(), "version-info", nil, sendOptions{}))
	assert.Contains(t, out.String(), "Supported services:")
	assert.Contains(t, out.String(), "DMS")
	assert.Contains(t, out.String(), "(1.14)")
}

func TestExecSendAllocatesAndReleases(t *testing.T) {
	cli, out := newTestCLI(t)
	err := cli.Exec(context.Background(), "send", []string{"dms", "0x0021"}, sendOptions{clientID: -1, release: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Client DMS/7")
	assert.Contains(t, out.String(), "<<< ")
	assert.Empty(t, cli.dev.Clients())
}

func TestExecSendKeepsClient(t *testing.T) {
	cli, _ := newTestCLI(t)
	err := cli.Exec(context.Background(), "send", []string{"dms", "0x0021"}, sendOptions{clientID: 3})
	require.NoError(t, err)
	clients := cli.dev.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, uint8(3), clients[0].ClientID)
	assert.False(t, clients[0].Allocated)
}

func TestExecErrors(t *testing.T) {
	cli, _ := newTestCLI(t)
	assert.Error(t, cli.Exec(context.Background(), "frobnicate", nil, sendOptions{}))
	assert.Error(t, cli.Exec(context.Background(), "set-instance-id", nil, sendOptions{}))
	assert.Error(t, cli.Exec(context.Background(), "set-instance-id", []string{"300"}, sendOptions{}))

	// 263 would otherwise wrap to client id 7.
	assert.Error(t, cli.Exec(context.Background(), "send", []string{"dms", "0x0021"}, sendOptions{clientID: 263}))
	assert.Empty(t, cli.dev.Clients())
}
