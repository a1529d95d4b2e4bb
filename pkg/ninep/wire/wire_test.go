package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, typ MType, tag uint16, body Body) *Message {
	t.Helper()
	buf, err := Encode(typ, tag, body, 0)
	require.NoError(t, err)

	msg, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, typ, msg.Type)
	assert.Equal(t, tag, msg.Tag)
	return msg
}

func TestRoundTripTversion(t *testing.T) {
	in := &TversionBody{Msize: 65536, Version: "9P2000.L"}
	msg := roundTrip(t, Tversion, NOTAG, in)
	out := msg.Body.(*TversionBody)
	assert.Equal(t, in.Msize, out.Msize)
	assert.Equal(t, in.Version, out.Version)
}

func TestRoundTripTattach(t *testing.T) {
	in := &TattachBody{Fid: 1, Afid: NOFID, Uname: "alice", Aname: "/export", NUID: 1000}
	msg := roundTrip(t, Tattach, 7, in)
	out := msg.Body.(*TattachBody)
	assert.Equal(t, *in, *out)
}

func TestRoundTripTwalk(t *testing.T) {
	in := &TwalkBody{Fid: 1, Newfid: 2, Wname: []string{"a", "b", "c"}}
	msg := roundTrip(t, Twalk, 3, in)
	out := msg.Body.(*TwalkBody)
	assert.Equal(t, in.Wname, out.Wname)
}

func TestRoundTripTwalkTooManyNames(t *testing.T) {
	names := make([]string, 17)
	for i := range names {
		names[i] = "x"
	}
	in := &TwalkBody{Fid: 1, Newfid: 2, Wname: names}
	_, err := Encode(Twalk, 1, in, 0)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRoundTripRreadData(t *testing.T) {
	in := &RreadBody{Data: []byte("hello, 9p")}
	msg := roundTrip(t, Rread, 9, in)
	out := msg.Body.(*RreadBody)
	assert.Equal(t, in.Data, out.Data)
}

func TestRoundTripRerror(t *testing.T) {
	in := &RerrorBody{Ename: "no such file or directory", Errno: 2}
	msg := roundTrip(t, Rerror, 5, in)
	out := msg.Body.(*RerrorBody)
	assert.Equal(t, *in, *out)
}

func TestRoundTripQidAndGetattr(t *testing.T) {
	in := &RgetattrBody{
		Valid: GetattrBasic,
		Qid:   QID{Type: QTFILE, Version: 3, Path: 42},
		Mode:  0100644,
		UID:   1000,
		GID:   1000,
		Nlink: 1,
		Size:  4096,
	}
	msg := roundTrip(t, Rgetattr, 1, in)
	out := msg.Body.(*RgetattrBody)
	assert.Equal(t, in.Qid, out.Qid)
	assert.Equal(t, in.Size, out.Size)
}

func TestEncodeRejectsOversizeMsize(t *testing.T) {
	in := &RreadBody{Data: make([]byte, 1000)}
	_, err := Encode(Rread, 1, in, 64)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestDecodeRejectsSizeMismatch(t *testing.T) {
	buf, err := Encode(Tversion, NOTAG, &TversionBody{Msize: 8192, Version: "9P2000.L"}, 0)
	require.NoError(t, err)
	buf = append(buf, 0xFF) // trailing garbage byte, header size now wrong
	_, err = Decode(buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	buf, err := Encode(Tclunk, 1, &TclunkBody{fidOnlyBody{Fid: 1}}, 0)
	require.NoError(t, err)
	// Patch the size field to claim one extra byte than actually encoded.
	buf = append(buf, 0x00)
	buf[0]++
	_, err = Decode(buf)
	require.Error(t, err)
}

func TestDecodeKeepsUnknownTypeForDispatch(t *testing.T) {
	buf, err := Encode(Tversion, NOTAG, &TversionBody{Msize: 8192, Version: "9P2000.L"}, 0)
	require.NoError(t, err)
	buf[4] = 0xEE // not a recognized MType
	msg, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, MType(0xEE), msg.Type)
	assert.IsType(t, &unknownBody{}, msg.Body)
}

func TestPeekSize(t *testing.T) {
	buf, err := Encode(Tversion, NOTAG, &TversionBody{Msize: 8192, Version: "9P2000.L"}, 0)
	require.NoError(t, err)
	size, err := PeekSize(buf[:4])
	require.NoError(t, err)
	assert.Equal(t, uint32(len(buf)), size)
}

func TestStrRejectsInvalidUTF8(t *testing.T) {
	e := &encBuf{}
	err := e.str(string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrBadString)
}
