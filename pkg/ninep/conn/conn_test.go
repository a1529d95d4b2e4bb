//go:build linux

package conn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/backend/ctl"
	"github.com/marmos91/diod/pkg/export"
	"github.com/marmos91/diod/pkg/identity"
	"github.com/marmos91/diod/pkg/ninep/transport"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

// harness wires one Conn to the client end of an in-memory pipe, so tests
// can drive the wire protocol directly without a real socket.
type harness struct {
	t      *testing.T
	client net.Conn
	done   chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	serverSide, clientSide := net.Pipe()

	store, err := identity.NewStore(identity.Options{CacheSize: 8, NoUserDB: true, SquashUser: "65534"})
	require.NoError(t, err)

	c := New(Config{
		ID:         1,
		MaxMsize:   65536,
		NumWorkers: 2,
		Exports:    export.NewList(nil, false),
		Ctl:        ctl.NewBackend(ctl.Config{Version: "test"}),
		Identity:   store,
		Auth:       auth.NoneProvider{},
		NoAuth:     true,
	}, transport.NewStream(serverSide))

	h := &harness{t: t, client: clientSide, done: make(chan error, 1)}
	go func() { h.done <- c.Serve(context.Background()) }()
	return h
}

func (h *harness) roundTrip(typ wire.MType, tag uint16, body wire.Body) *wire.Message {
	h.t.Helper()
	frame, err := wire.Encode(typ, tag, body, 65536)
	require.NoError(h.t, err)
	h.client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = h.client.Write(frame)
	require.NoError(h.t, err)

	var sizeBuf [4]byte
	_, err = readFullTest(h.client, sizeBuf[:])
	require.NoError(h.t, err)
	size := uint32(sizeBuf[0]) | uint32(sizeBuf[1])<<8 | uint32(sizeBuf[2])<<16 | uint32(sizeBuf[3])<<24
	rest := make([]byte, size-4)
	_, err = readFullTest(h.client, rest)
	require.NoError(h.t, err)
	msg, err := wire.Decode(append(sizeBuf[:], rest...))
	require.NoError(h.t, err)
	return msg
}

func readFullTest(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (h *harness) version(t *testing.T) {
	msg := h.roundTrip(wire.Tversion, wire.NOTAG, &wire.TversionBody{Msize: 65536, Version: "9P2000.L"})
	require.Equal(t, wire.Rversion, msg.Type)
}

func (h *harness) close() {
	h.client.Close()
}

func TestVersionNegotiation(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	h.version(t)
}

func TestUnsupportedVersionRepliesUnknown(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	msg := h.roundTrip(wire.Tversion, wire.NOTAG, &wire.TversionBody{Msize: 8192, Version: "9P2000"})
	body := msg.Body.(*wire.RversionBody)
	require.Equal(t, "unknown", body.Version)
}

func TestRequestBeforeVersionIsRejected(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	msg := h.roundTrip(wire.Tattach, 1, &wire.TattachBody{Fid: 0, Afid: wire.NOFID, Uname: "nobody", Aname: "ctl", NUID: 65534})
	require.Equal(t, wire.Rerror, msg.Type)
}

func TestAttachWalkOpenReadCtlVersion(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	h.version(t)

	msg := h.roundTrip(wire.Tattach, 1, &wire.TattachBody{Fid: 0, Afid: wire.NOFID, Uname: "65534", Aname: "ctl", NUID: 65534})
	require.Equal(t, wire.Rattach, msg.Type)

	msg = h.roundTrip(wire.Twalk, 2, &wire.TwalkBody{Fid: 0, Newfid: 1, Wname: []string{"version"}})
	require.Equal(t, wire.Rwalk, msg.Type)
	walkBody := msg.Body.(*wire.RwalkBody)
	require.Len(t, walkBody.Wqid, 1)

	msg = h.roundTrip(wire.Topen, 3, &wire.TopenBody{Fid: 1, Flags: 0})
	require.Equal(t, wire.Ropen, msg.Type)

	msg = h.roundTrip(wire.Tread, 4, &wire.TreadBody{Fid: 1, Offset: 0, Count: 4096})
	require.Equal(t, wire.Rread, msg.Type)
	data := msg.Body.(*wire.RreadBody).Data
	require.Equal(t, "test\n", string(data))
}

func TestFlushUnknownTagStillReplies(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	h.version(t)

	msg := h.roundTrip(wire.Tflush, 9, &wire.TflushBody{Oldtag: 123})
	require.Equal(t, wire.Rflush, msg.Type)
}

func TestMaxReadCountClampsToMsize(t *testing.T) {
	c := &Conn{msize: 4096}
	require.Equal(t, uint32(4096-wire.DataReplyOverhead), c.maxReadCount(1<<20))
	require.Equal(t, uint32(100), c.maxReadCount(100))
}

// TestUnknownMessageTypeGetsRerror exercises spec.md §4.1's decode/dispatch
// split directly: Decode must hand back a Message (tag intact) for a type
// it has no body for, so dispatch's default case can turn it into an
// Rerror instead of the frame being silently dropped.
func TestUnknownMessageTypeGetsRerror(t *testing.T) {
	h := newHarness(t)
	defer h.close()
	h.version(t)

	frame, err := wire.Encode(wire.MType(250), 5, &wire.RflushBody{}, 65536)
	require.NoError(t, err)
	h.client.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = h.client.Write(frame)
	require.NoError(t, err)

	var sizeBuf [4]byte
	_, err = readFullTest(h.client, sizeBuf[:])
	require.NoError(t, err)
	size := uint32(sizeBuf[0]) | uint32(sizeBuf[1])<<8 | uint32(sizeBuf[2])<<16 | uint32(sizeBuf[3])<<24
	rest := make([]byte, size-4)
	_, err = readFullTest(h.client, rest)
	require.NoError(t, err)
	msg, err := wire.Decode(append(sizeBuf[:], rest...))
	require.NoError(t, err)
	require.Equal(t, wire.Rerror, msg.Type)
}
