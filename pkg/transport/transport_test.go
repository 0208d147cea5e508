package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/transport"
	"github.com/qmi-protocol/qmi-go/pkg/transport/mocks"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

type capture struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *capture) Log(e log.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func frame(t *testing.T, id uint16, txid uint16) []byte {
	t.Helper()
	msg, err := wire.NewResponse(wire.ServiceDMS, 1, txid, id, wire.ResultTLV(wire.ProtocolErrorNone))
	require.NoError(t, err)
	return msg.Bytes()
}

func TestFrameWriterWritesWholeFrameOnce(t *testing.T) {
	f := frame(t, wire.MessageDMSGetIDs, 1)

	mt := mocks.NewMockTransport(t)
	mt.EXPECT().Write(f).Return(len(f), nil).Once()

	c := &capture{}
	fw := transport.NewFrameWriter(mt, transport.FramerConfig{Capture: c, PortID: "p", Device: "/dev/cdc-wdm0"})
	require.NoError(t, fw.WriteFrame(f))

	require.Len(t, c.events, 1)
	ev := c.events[0]
	assert.Equal(t, log.DirectionOut, ev.Direction)
	assert.Equal(t, log.LayerTransport, ev.Layer)
	assert.Equal(t, "/dev/cdc-wdm0", ev.Device)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, len(f), ev.Frame.Size)
	assert.Nil(t, ev.Frame.Data, "raw bytes are personal info")
}

func TestFrameWriterRejectsInvalidFrames(t *testing.T) {
	good := frame(t, wire.MessageDMSGetIDs, 1)
	badMarker := append([]byte{0x02}, good[1:]...)

	tests := map[string][]byte{
		"empty":      nil,
		"short":      {0x01, 0x05},
		"bad marker": badMarker,
		"trailing":   append(append([]byte{}, good...), 0x00),
	}
	for name, f := range tests {
		t.Run(name, func(t *testing.T) {
			mt := mocks.NewMockTransport(t)
			fw := transport.NewFrameWriter(mt, transport.FramerConfig{})
			err := fw.WriteFrame(f)
			assert.True(t, errors.Is(err, transport.ErrInvalidFrame))
		})
	}
}

func TestFrameWriterPropagatesWriteError(t *testing.T) {
	f := frame(t, wire.MessageDMSGetIDs, 1)
	hangup := errors.New("device gone")

	mt := mocks.NewMockTransport(t)
	mt.EXPECT().Write(f).Return(0, hangup).Once()

	c := &capture{}
	fw := transport.NewFrameWriter(mt, transport.FramerConfig{Capture: c})
	assert.True(t, errors.Is(fw.WriteFrame(f), hangup))
	assert.Empty(t, c.events)
}

func TestFrameReaderSplitsStream(t *testing.T) {
	a := frame(t, wire.MessageDMSGetIDs, 1)
	b := frame(t, wire.MessageDMSGetIDs, 2)
	stream := append(append([]byte{}, a...), b...)

	for name, r := range map[string]io.Reader{
		"whole":    bytes.NewReader(stream),
		"one byte": iotest.OneByteReader(bytes.NewReader(stream)),
		"half":     iotest.HalfReader(bytes.NewReader(stream)),
	} {
		t.Run(name, func(t *testing.T) {
			fr := transport.NewFrameReader(r, transport.FramerConfig{})

			got, err := fr.ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, a, got)

			got, err = fr.ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, b, got)

			_, err = fr.ReadFrame()
			assert.Equal(t, io.EOF, err)
			assert.Zero(t, fr.Skipped())
		})
	}
}

func TestFrameReaderResynchronizes(t *testing.T) {
	f := frame(t, wire.MessageDMSGetIDs, 3)
	noise := []byte{0xFF, 0x00, 0x7E}
	// A marker followed by a length too small for any QMI message.
	tiny := []byte{0x01, 0x02, 0x00}
	stream := append(append(append([]byte{}, noise...), tiny...), f...)

	c := &capture{}
	fr := transport.NewFrameReader(bytes.NewReader(stream), transport.FramerConfig{Capture: c, ShowPersonalInfo: true})

	got, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, f, got)
	assert.Equal(t, uint64(len(noise)+len(tiny)), fr.Skipped())

	_, err = wire.Decode(got)
	assert.NoError(t, err)

	require.Len(t, c.events, 2)
	assert.Equal(t, log.CategoryError, c.events[0].Category)
	require.NotNil(t, c.events[1].Frame)
	assert.Equal(t, f, c.events[1].Frame.Data)
}

func ctlSyncRequest(t *testing.T, txid uint16) []byte {
	t.Helper()
	msg, err := wire.NewMessage(wire.Header{
		Service:       wire.ServiceCTL,
		Flags:         wire.CTLFlagRequest,
		TransactionID: txid,
		MessageID:     wire.MessageCTLSync,
	})
	require.NoError(t, err)
	return msg.Bytes()
}

func TestFrameReaderSkipsStrayMarker(t *testing.T) {
	a := ctlSyncRequest(t, 1)
	b := ctlSyncRequest(t, 2)

	tests := map[string][]byte{
		"lone marker":      {0x01},
		"marker and noise": {0x01, 0x37, 0x01, 0x01, 0x80, 0x02, 0x01, 0xFF},
		"bad qmux flags":   {0x01, 0x0B, 0x00, 0x42, 0x00, 0x00},
		"wrong tlv length": {0x01, 0x0B, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05, 0x27, 0x00, 0x09, 0x00},
	}
	for name, garbage := range tests {
		t.Run(name, func(t *testing.T) {
			stream := append(append(append([]byte{}, garbage...), a...), b...)
			for rname, r := range map[string]io.Reader{
				"whole":    bytes.NewReader(stream),
				"one byte": iotest.OneByteReader(bytes.NewReader(stream)),
			} {
				fr := transport.NewFrameReader(r, transport.FramerConfig{})

				got, err := fr.ReadFrame()
				require.NoError(t, err, rname)
				assert.Equal(t, a, got, rname)

				got, err = fr.ReadFrame()
				require.NoError(t, err, rname)
				assert.Equal(t, b, got, rname)

				_, err = fr.ReadFrame()
				assert.Equal(t, io.EOF, err, rname)
				assert.Equal(t, uint64(len(garbage)), fr.Skipped(), rname)
			}
		})
	}
}

func TestFrameReaderStrayMarkerOnLivePort(t *testing.T) {
	host, modem := transport.Pipe("/dev/fake0")
	defer host.Close()
	defer modem.Close()

	a := ctlSyncRequest(t, 1)
	b := ctlSyncRequest(t, 2)
	go func() {
		modem.Write([]byte{0x01})
		modem.Write(a)
		modem.Write(b)
	}()

	fr := transport.NewFrameReader(host, transport.FramerConfig{})
	got, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, a, got)
	got, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.Equal(t, uint64(1), fr.Skipped())
}

func TestFrameReaderTruncated(t *testing.T) {
	f := frame(t, wire.MessageDMSGetIDs, 4)

	fr := transport.NewFrameReader(bytes.NewReader(f[:len(f)-2]), transport.FramerConfig{})
	_, err := fr.ReadFrame()
	assert.True(t, errors.Is(err, transport.ErrFrameTruncated))

	fr = transport.NewFrameReader(bytes.NewReader(f[:2]), transport.FramerConfig{})
	_, err = fr.ReadFrame()
	assert.True(t, errors.Is(err, transport.ErrFrameTruncated))
}

func TestFrameReaderReadError(t *testing.T) {
	boom := errors.New("boom")
	fr := transport.NewFrameReader(iotest.ErrReader(boom), transport.FramerConfig{})
	_, err := fr.ReadFrame()
	assert.True(t, errors.Is(err, boom))
}

func TestPipeFramer(t *testing.T) {
	host, modem := transport.Pipe("/dev/fake0")
	defer host.Close()
	defer modem.Close()
	assert.Equal(t, "/dev/fake0", host.Name())
	assert.Equal(t, "/dev/fake0", modem.Name())

	hostFramer := transport.NewFramer(host, transport.FramerConfig{})
	modemFramer := transport.NewFramer(modem, transport.FramerConfig{})

	f := frame(t, wire.MessageDMSGetIDs, 9)
	errc := make(chan error, 1)
	go func() { errc <- hostFramer.WriteFrame(f) }()

	got, err := modemFramer.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, f, got)
	require.NoError(t, <-errc)

	require.NoError(t, modem.Close())
	_, err = hostFramer.ReadFrame()
	assert.Error(t, err)
}

func TestDialProxyAt(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "proxy.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := transport.DialProxyAt(ctx, sock, "/dev/cdc-wdm0")
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, "/dev/cdc-wdm0", tr.Name())

	server := <-accepted
	defer server.Close()

	go func() { _, _ = tr.Write([]byte{0x01, 0x02}) }()
	buf := make([]byte, 2)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, buf)
}

func TestDialProxyAtNoListener(t *testing.T) {
	_, err := transport.DialProxyAt(context.Background(), filepath.Join(t.TempDir(), "none.sock"), "/dev/cdc-wdm0")
	assert.Error(t, err)
}

func TestOpenFileMissing(t *testing.T) {
	_, err := transport.OpenFile(filepath.Join(t.TempDir(), "cdc-wdm9"))
	assert.Error(t, err)
}

func TestProxyDialerRetriesUntilListening(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "proxy.sock")

	// The listener shows up after the first attempt has failed.
	var ln net.Listener
	var lnErr error
	ready := make(chan struct{})
	go func() {
		defer close(ready)
		time.Sleep(50 * time.Millisecond)
		ln, lnErr = net.Listen("unix", sock)
	}()

	var logs bytes.Buffer
	d := &transport.ProxyDialer{
		Socket:  sock,
		Retries: 20,
		Backoff: transport.BackoffConfig{Initial: 20 * time.Millisecond, Max: 50 * time.Millisecond, Jitter: -1},
		Logger:  slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := d.Dial(ctx, "/dev/cdc-wdm0")
	<-ready
	require.NoError(t, lnErr)
	defer ln.Close()
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, "/dev/cdc-wdm0", tr.Name())
	assert.Contains(t, logs.String(), "retry_in=20ms")
	assert.Contains(t, logs.String(), "connected to proxy")
}

func TestProxyDialerGivesUp(t *testing.T) {
	d := &transport.ProxyDialer{
		Socket:  filepath.Join(t.TempDir(), "none.sock"),
		Retries: 2,
		Backoff: transport.BackoffConfig{Initial: time.Millisecond, Jitter: -1},
	}
	_, err := d.Dial(context.Background(), "/dev/cdc-wdm0")
	assert.ErrorIs(t, err, transport.ErrProxyUnavailable)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestProxyDialerNoRetry(t *testing.T) {
	d := &transport.ProxyDialer{Socket: filepath.Join(t.TempDir(), "none.sock"), Retries: -1}
	start := time.Now()
	_, err := d.Dial(context.Background(), "/dev/cdc-wdm0")
	assert.ErrorIs(t, err, transport.ErrProxyUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProxyDialerContextCancelled(t *testing.T) {
	d := &transport.ProxyDialer{
		Socket:  filepath.Join(t.TempDir(), "none.sock"),
		Retries: 100,
		Backoff: transport.BackoffConfig{Initial: time.Hour, Jitter: -1},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.Dial(ctx, "/dev/cdc-wdm0")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffSequence(t *testing.T) {
	b := transport.NewBackoff(transport.BackoffConfig{Initial: 100 * time.Millisecond, Max: time.Second, Jitter: -1})
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Next(), "attempt %d", i)
	}
	assert.Equal(t, len(want), b.Attempts())
}

func TestBackoffJitterBounds(t *testing.T) {
	for i := 0; i < 20; i++ {
		b := transport.NewBackoff(transport.BackoffConfig{Initial: time.Second, Jitter: 0.25})
		d := b.Next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}
