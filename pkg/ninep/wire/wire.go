// Package wire implements the 9P2000.L message codec: the on-the-wire
// framing, integer/string encoding, and QID representation described in
// spec.md §4.1. It is deliberately ignorant of sockets, fids, and
// credentials — it only turns bytes into Messages and back.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MType identifies a 9P message's wire type. Every T-message has a matching
// R-message whose MType is exactly one greater, by protocol convention.
type MType uint8

// Message type constants. Numbering matches the 9P2000.L wire protocol;
// names match spec.md §6's mandatory-message list (which uses the
// historical "Topen"/"Tcreate" names rather than the wire protocol's
// "Tlopen"/"Tlcreate" — the wire numbers are unaffected either way).
const (
	Tstatfs MType = 8
	Rstatfs MType = 9

	Topen  MType = 12
	Ropen  MType = 13
	Tcreate MType = 14
	Rcreate MType = 15

	Tsymlink  MType = 16
	Rsymlink  MType = 17
	Tmknod    MType = 18
	Rmknod    MType = 19
	Trename   MType = 20
	Rrename   MType = 21
	Treadlink MType = 22
	Rreadlink MType = 23
	Tgetattr  MType = 24
	Rgetattr  MType = 25
	Tsetattr  MType = 26
	Rsetattr  MType = 27

	Txattrwalk   MType = 30
	Rxattrwalk   MType = 31
	Txattrcreate MType = 32
	Rxattrcreate MType = 33

	Treaddir MType = 40
	Rreaddir MType = 41

	Tfsync MType = 50
	Rfsync MType = 51
	Tlock  MType = 52
	Rlock  MType = 53

	Tgetlock MType = 54
	Rgetlock MType = 55

	Tlink MType = 70
	Rlink MType = 71

	Tremove MType = 122
	Rremove MType = 123

	Tversion MType = 100
	Rversion MType = 101
	Tauth    MType = 102
	Rauth    MType = 103
	Tattach  MType = 104
	Rattach  MType = 105
	// Terror is never sent; Rerror is the only error reply.
	Rerror MType = 107
	Tflush MType = 108
	Rflush MType = 109
	Twalk  MType = 110
	Rwalk  MType = 111

	Tread  MType = 116
	Rread  MType = 117
	Twrite MType = 118
	Rwrite MType = 119
	Tclunk MType = 120
	Rclunk MType = 121
)

// NOTAG is the reserved tag used only on Tversion. NOFID marks an absent fid
// field (e.g. Tattach with no auth fid).
const (
	NOTAG uint16 = 0xFFFF
	NOFID uint32 = 0xFFFFFFFF
)

// MinMsize is the smallest msize the server will negotiate: enough to hold a
// message header plus any fixed-size request (spec.md §4.6).
const MinMsize = 4096

// sizeFieldLen is the width of the leading length-prefix field.
const sizeFieldLen = 4

// QID is the server-assigned unique identifier for a filesystem object:
// type (high byte of the 9P mode), version (changes each time the file's
// data or metadata changes) and path (stable identifier, usually inode).
type QID struct {
	Type    uint8
	Version uint32
	Path    uint64
}

const qidLen = 1 + 4 + 8

// QID type bits (high byte of Unix mode translated to 9P).
const (
	QTDIR    uint8 = 0x80
	QTAPPEND uint8 = 0x40
	QTEXCL   uint8 = 0x20
	QTSYMLINK uint8 = 0x02
	QTFILE   uint8 = 0x00
)

// Errors returned by decode/encode. These are wrapped, never swallowed, so
// callers can tell a short read apart from a malformed body.
var (
	ErrShortFrame    = errors.New("wire: frame shorter than declared size")
	ErrTrailingBytes = errors.New("wire: trailing bytes after decoded body")
	ErrTooLarge      = errors.New("wire: encoded message exceeds msize")
	ErrBadString     = errors.New("wire: string is not valid UTF-8 or contains NUL")
	ErrMalformed     = errors.New("wire: malformed message")
)

// encBuf is a tiny append-only byte-buffer writer used by every per-message
// Encode method. It never errors; overflow is instead caught by the caller
// comparing the final length against msize, mirroring how the teacher's XDR
// encoder composes small Write helpers rather than hand-rolling offsets
// everywhere (internal/protocol/xdr/encode.go in the teacher).
type encBuf struct {
	b []byte
}

func (e *encBuf) u8(v uint8)   { e.b = append(e.b, v) }
func (e *encBuf) u16(v uint16) { e.b = binary.LittleEndian.AppendUint16(e.b, v) }
func (e *encBuf) u32(v uint32) { e.b = binary.LittleEndian.AppendUint32(e.b, v) }
func (e *encBuf) u64(v uint64) { e.b = binary.LittleEndian.AppendUint64(e.b, v) }

func (e *encBuf) qid(q QID) {
	e.u8(q.Type)
	e.u32(q.Version)
	e.u64(q.Path)
}

func (e *encBuf) str(s string) error {
	if !utf8.ValidString(s) {
		return ErrBadString
	}
	if len(s) > 0xFFFF {
		return fmt.Errorf("%w: string too long (%d bytes)", ErrMalformed, len(s))
	}
	e.u16(uint16(len(s)))
	e.b = append(e.b, s...)
	return nil
}

func (e *encBuf) bytes(p []byte) error {
	if len(p) > 0xFFFFFFFF {
		return fmt.Errorf("%w: byte field too long", ErrMalformed)
	}
	e.u32(uint32(len(p)))
	e.b = append(e.b, p...)
	return nil
}

// decBuf is the matching append-only reader. Every accessor bounds-checks
// and returns ErrMalformed on underrun, so a single corrupt length field
// fails the whole decode rather than reading past the frame.
type decBuf struct {
	b   []byte
	off int
}

func (d *decBuf) remaining() int { return len(d.b) - d.off }

func (d *decBuf) need(n int) error {
	if d.remaining() < n {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrMalformed, n, d.remaining())
	}
	return nil
}

func (d *decBuf) u8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *decBuf) u16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.b[d.off:])
	d.off += 2
	return v, nil
}

func (d *decBuf) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

func (d *decBuf) u64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v, nil
}

func (d *decBuf) qid() (QID, error) {
	var q QID
	if err := d.need(qidLen); err != nil {
		return q, err
	}
	t, _ := d.u8()
	v, _ := d.u32()
	p, _ := d.u64()
	q.Type, q.Version, q.Path = t, v, p
	return q, nil
}

func (d *decBuf) str() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.b[d.off : d.off+int(n)])
	d.off += int(n)
	if !utf8.ValidString(s) {
		return "", ErrBadString
	}
	return s, nil
}

func (d *decBuf) bytesN() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.b[d.off:d.off+int(n)])
	d.off += int(n)
	return out, nil
}

func (d *decBuf) done() error {
	if d.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrTrailingBytes, d.remaining())
	}
	return nil
}

// PeekSize reads the 4-byte little-endian length prefix from the first
// 4 bytes of a frame. The transport reader uses this to know how many more
// bytes to consume before handing the frame to Decode (spec.md §4.1, §4.2).
func PeekSize(first4 []byte) (uint32, error) {
	if len(first4) < sizeFieldLen {
		return 0, ErrShortFrame
	}
	return binary.LittleEndian.Uint32(first4[:sizeFieldLen]), nil
}

// Header is the common prefix of every frame: total size, type, tag.
type Header struct {
	Size uint32
	Type MType
	Tag  uint16
}

const headerLen = sizeFieldLen + 1 + 2

// DataReplyOverhead is the framing cost of an Rread/Rreaddir reply around
// its variable-length data field (header plus the 4-byte count prefix that
// encBuf.bytes writes). Callers building a Tread/Treaddir reply must clamp
// the data they gather to msize-DataReplyOverhead so Encode never rejects
// it as too large (spec.md §4.1: "the server may return less data than
// requested").
const DataReplyOverhead = headerLen + 4

// Message is a decoded 9P frame: its header plus a type-specific body. Body
// is one of the T*/R* structs defined in messages.go.
type Message struct {
	Header
	Body Body
}

// Body is implemented by every T*Pkt/R*Pkt struct in messages.go.
type Body interface {
	encode(e *encBuf) error
	decode(d *decBuf) error
}

// Decode parses exactly one frame. The caller MUST have already read
// exactly Size bytes (spec.md §4.1: "a caller MUST have already read
// exactly size bytes") — buf is the complete frame, length prefix included.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < headerLen {
		return nil, ErrShortFrame
	}
	size := binary.LittleEndian.Uint32(buf[0:4])
	if int(size) != len(buf) {
		return nil, fmt.Errorf("%w: header says %d, got %d bytes", ErrMalformed, size, len(buf))
	}
	typ := MType(buf[4])
	tag := binary.LittleEndian.Uint16(buf[5:7])

	body, err := newBody(typ)
	if err != nil {
		var niErr *NotImplementedError
		if errors.As(err, &niErr) {
			// A type Decode has never heard of still decodes, tag intact,
			// so the client gets an Rerror instead of a hung tag — dispatch
			// is where "not implemented" is actually reported (spec.md
			// §4.1: "Unknown message types fail with not implemented
			// during dispatch, not during decode").
			return &Message{Header: Header{Size: size, Type: typ, Tag: tag}, Body: &unknownBody{}}, nil
		}
		return nil, err
	}

	d := &decBuf{b: buf[headerLen:]}
	if err := body.decode(d); err != nil {
		return nil, err
	}
	if err := d.done(); err != nil {
		return nil, err
	}

	return &Message{Header: Header{Size: size, Type: typ, Tag: tag}, Body: body}, nil
}

// Encode serializes msg into the frame format (length prefix included) and
// fails with ErrTooLarge if the result would exceed msize (spec.md §4.1,
// §4.6: msize bounds both directions).
func Encode(typ MType, tag uint16, body Body, msize uint32) ([]byte, error) {
	e := &encBuf{b: make([]byte, headerLen)}
	if err := body.encode(e); err != nil {
		return nil, err
	}
	total := uint32(len(e.b))
	if msize > 0 && total > msize {
		return nil, fmt.Errorf("%w: %d bytes > msize %d", ErrTooLarge, total, msize)
	}
	binary.LittleEndian.PutUint32(e.b[0:4], total)
	e.b[4] = byte(typ)
	binary.LittleEndian.PutUint16(e.b[5:7], tag)
	return e.b, nil
}

// NotImplementedError is returned by dispatch (not decode — spec.md §4.1:
// "Unknown message types fail with not implemented during dispatch, not
// during decode") when a T-type has no registered handler.
type NotImplementedError struct {
	Type MType
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("wire: message type %d not implemented", e.Type)
}

// unknownBody is the placeholder Decode hands back for a type newBody
// doesn't recognize. It carries no fields; dispatch's default case is what
// turns it into an Rerror, keyed off the message's Header.Type rather than
// anything in the body.
type unknownBody struct{}

func (m *unknownBody) encode(e *encBuf) error { return nil }
func (m *unknownBody) decode(d *decBuf) error { return nil }
