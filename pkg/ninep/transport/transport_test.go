package transport

import (
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/diod/pkg/ninep/wire"
)

func TestStreamSendRecvRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := NewStream(client)
	st := NewStream(server)

	frame, err := wire.Encode(wire.Tversion, wire.NOTAG, &wire.TversionBody{Msize: 8192, Version: "9P2000.L"}, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, ct.Send(frame))
	}()

	got, err := st.Recv()
	require.NoError(t, err)
	assert.Equal(t, frame, got)
	wg.Wait()
}

func TestStreamRecvEOF(t *testing.T) {
	client, server := net.Pipe()
	ct := NewStream(client)
	st := NewStream(server)

	go ct.Close()

	_, err := st.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSendAfterCloseFails(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	ct := NewStream(client)
	require.NoError(t, ct.Close())

	err := ct.Send([]byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentSendAndRecvDoNotBlockEachOther(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := NewStream(client)
	st := NewStream(server)

	frame, err := wire.Encode(wire.Tclunk, 1, &wire.TclunkBody{}, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = ct.Send(frame)
	}()
	go func() {
		defer wg.Done()
		_, _ = st.Recv()
	}()
	wg.Wait()
}

func TestPairedFDRoundTrip(t *testing.T) {
	// writeSide/readSide model diod's --wfdno: one pipe carries server->client
	// bytes, a second (unused by this test) would carry client->server.
	readSideIn, writeSideOut := net.Pipe()
	defer readSideIn.Close()
	defer writeSideOut.Close()

	closed := false
	pt := NewPairedFD(readSideIn, writeSideOut, func() error { closed = true; return nil })

	frame, err := wire.Encode(wire.Tflush, 2, &wire.TflushBody{Oldtag: 1}, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, pt.Send(frame))
	}()

	got := make([]byte, len(frame))
	_, err = io.ReadFull(readSideIn, got)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
	wg.Wait()

	require.NoError(t, pt.Close())
	assert.True(t, closed)
}
