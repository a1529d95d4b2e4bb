//go:build linux

package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/backend/ctl"
	"github.com/marmos91/diod/pkg/export"
	"github.com/marmos91/diod/pkg/identity"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

func newTestStore(t *testing.T) *identity.Store {
	t.Helper()
	store, err := identity.NewStore(identity.Options{CacheSize: 16, NoUserDB: true, SquashUser: "65534"})
	require.NoError(t, err)
	return store
}

func TestServeUnixNegotiatesVersion(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "diod.sock")

	cfg := Config{
		Listen:     []string{"unix:" + sockPath},
		MaxMsize:   65536,
		NumWorkers: 2,
		Exports:    export.NewList(nil, false),
		Identity:   newTestStore(t),
		Auth:       auth.NoneProvider{},
		CtlCfg:     ctl.Config{Version: "test"},
		NoAuth:     true,
	}
	s := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var nc net.Conn
	var err error
	for i := 0; i < 50; i++ {
		nc, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer nc.Close()

	frame, err := wire.Encode(wire.Tversion, 0xFFFF, &wire.TversionBody{Msize: 8192, Version: "9P2000.L"}, 8192)
	require.NoError(t, err)
	_, err = nc.Write(frame)
	require.NoError(t, err)

	buf := make([]byte, 256)
	nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := nc.Read(buf)
	require.NoError(t, err)

	msg, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, wire.Rversion, msg.Type)
	body := msg.Body.(*wire.RversionBody)
	require.Equal(t, "9P2000.L", body.Version)
	require.Equal(t, uint32(8192), body.Msize)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
