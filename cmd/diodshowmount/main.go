// Command diodshowmount attaches to a running diod server's ctl tree and
// prints its active connections (and, with -l, its exports), without requiring
// a real mount (original_source/utils/diodshowmount.c: "cat ctl:connections").
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/marmos91/diod/pkg/ninep/wire"
)

func main() {
	server := pflag.StringP("server", "s", "localhost:564", "server HOST:PORT")
	msize := pflag.Uint32P("msize", "m", 65536, "msize")
	timeout := pflag.DurationP("timeout", "t", 5*time.Second, "connection timeout")
	long := pflag.BoolP("long", "l", false, "also print exports, not just connections")
	pflag.Parse()

	if err := run(*server, *msize, *timeout, *long); err != nil {
		fmt.Fprintf(os.Stderr, "diodshowmount: %v\n", err)
		os.Exit(1)
	}
}

func run(server string, msize uint32, timeout time.Duration, long bool) error {
	nc, err := net.DialTimeout("tcp", server, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", server, err)
	}
	defer nc.Close()
	nc.SetDeadline(time.Now().Add(timeout))

	c := &client{conn: nc, msize: msize}
	if err := c.version(); err != nil {
		return err
	}
	rootFid := uint32(1)
	if err := c.attach(rootFid, "ctl"); err != nil {
		return err
	}

	conns, err := c.readWholeFile(rootFid, 2, "connections")
	if err != nil {
		return fmt.Errorf("reading ctl/connections: %w", err)
	}
	fmt.Print(string(conns))

	if long {
		exports, err := c.readWholeFile(rootFid, 3, "exports")
		if err != nil {
			return fmt.Errorf("reading ctl/exports: %w", err)
		}
		fmt.Println("exports:")
		fmt.Print(string(exports))
	}
	return nil
}

// client is a bare-bones synchronous 9P2000.L client: one outstanding
// request at a time, tag 0 reused throughout, just enough to drive the
// attach/walk/open/read sequence diodshowmount needs.
type client struct {
	conn  net.Conn
	msize uint32
}

func (c *client) roundTrip(typ wire.MType, body wire.Body) (*wire.Message, error) {
	frame, err := wire.Encode(typ, 0, body, c.msize)
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return nil, err
	}

	var sizeBuf [4]byte
	if _, err := readFull(c.conn, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := uint32(sizeBuf[0]) | uint32(sizeBuf[1])<<8 | uint32(sizeBuf[2])<<16 | uint32(sizeBuf[3])<<24
	rest := make([]byte, size-4)
	if _, err := readFull(c.conn, rest); err != nil {
		return nil, err
	}
	full := append(sizeBuf[:], rest...)
	msg, err := wire.Decode(full)
	if err != nil {
		return nil, err
	}
	if msg.Type == wire.Rerror {
		rerr := msg.Body.(*wire.RerrorBody)
		return nil, fmt.Errorf("%s", rerr.Ename)
	}
	return msg, nil
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *client) version() error {
	msg, err := c.roundTrip(wire.Tversion, &wire.TversionBody{Msize: c.msize, Version: "9P2000.L"})
	if err != nil {
		return fmt.Errorf("Tversion: %w", err)
	}
	resp := msg.Body.(*wire.RversionBody)
	if resp.Version != "9P2000.L" {
		return fmt.Errorf("server does not support 9P2000.L")
	}
	c.msize = resp.Msize
	return nil
}

func (c *client) attach(fid uint32, aname string) error {
	_, err := c.roundTrip(wire.Tattach, &wire.TattachBody{Fid: fid, Afid: wire.NOFID, Uname: "nobody", Aname: aname, NUID: 65534})
	if err != nil {
		return fmt.Errorf("Tattach: %w", err)
	}
	return nil
}

// readWholeFile walks from root to name under newfid, opens and reads it
// to EOF.
func (c *client) readWholeFile(root, newfid uint32, name string) ([]byte, error) {
	_, err := c.roundTrip(wire.Twalk, &wire.TwalkBody{Fid: root, Newfid: newfid, Wname: []string{name}})
	if err != nil {
		return nil, fmt.Errorf("Twalk: %w", err)
	}
	if _, err := c.roundTrip(wire.Topen, &wire.TopenBody{Fid: newfid, Flags: 0}); err != nil {
		return nil, fmt.Errorf("Topen: %w", err)
	}

	var out []byte
	var offset uint64
	for {
		msg, err := c.roundTrip(wire.Tread, &wire.TreadBody{Fid: newfid, Offset: offset, Count: c.msize - 64})
		if err != nil {
			return nil, fmt.Errorf("Tread: %w", err)
		}
		data := msg.Body.(*wire.RreadBody).Data
		if len(data) == 0 {
			break
		}
		out = append(out, data...)
		offset += uint64(len(data))
	}
	clunkReq := &wire.TclunkBody{}
	clunkReq.Fid = newfid
	_, _ = c.roundTrip(wire.Tclunk, clunkReq)
	return out, nil
}
