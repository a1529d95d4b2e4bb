package wire

import "fmt"

// newBody allocates the zero-value Body struct matching typ, so Decode can
// fill it in. A typ outside this switch returns NotImplementedError; Decode
// turns that into a Message carrying unknownBody rather than failing the
// frame outright, since genuinely unknown wire types are a dispatch-time
// "not implemented", not a decode error (spec.md §4.1).
func newBody(typ MType) (Body, error) {
	switch typ {
	case Tversion:
		return &TversionBody{}, nil
	case Rversion:
		return &RversionBody{}, nil
	case Tauth:
		return &TauthBody{}, nil
	case Rauth:
		return &RauthBody{}, nil
	case Tattach:
		return &TattachBody{}, nil
	case Rattach:
		return &RattachBody{}, nil
	case Rerror:
		return &RerrorBody{}, nil
	case Tflush:
		return &TflushBody{}, nil
	case Rflush:
		return &RflushBody{}, nil
	case Twalk:
		return &TwalkBody{}, nil
	case Rwalk:
		return &RwalkBody{}, nil
	case Topen:
		return &TopenBody{}, nil
	case Ropen:
		return &RopenBody{}, nil
	case Tcreate:
		return &TcreateBody{}, nil
	case Rcreate:
		return &RcreateBody{}, nil
	case Tread:
		return &TreadBody{}, nil
	case Rread:
		return &RreadBody{}, nil
	case Twrite:
		return &TwriteBody{}, nil
	case Rwrite:
		return &RwriteBody{}, nil
	case Tclunk:
		return &TclunkBody{}, nil
	case Rclunk:
		return &RclunkBody{}, nil
	case Tremove:
		return &TremoveBody{}, nil
	case Rremove:
		return &RremoveBody{}, nil
	case Tgetattr:
		return &TgetattrBody{}, nil
	case Rgetattr:
		return &RgetattrBody{}, nil
	case Tsetattr:
		return &TsetattrBody{}, nil
	case Rsetattr:
		return &RsetattrBody{}, nil
	case Treaddir:
		return &TreaddirBody{}, nil
	case Rreaddir:
		return &RreaddirBody{}, nil
	case Tfsync:
		return &TfsyncBody{}, nil
	case Rfsync:
		return &RfsyncBody{}, nil
	case Tstatfs:
		return &TstatfsBody{}, nil
	case Rstatfs:
		return &RstatfsBody{}, nil
	case Trename:
		return &TrenameBody{}, nil
	case Rrename:
		return &RrenameBody{}, nil
	case Tlink:
		return &TlinkBody{}, nil
	case Rlink:
		return &RlinkBody{}, nil
	case Tsymlink:
		return &TsymlinkBody{}, nil
	case Rsymlink:
		return &RsymlinkBody{}, nil
	case Tmknod:
		return &TmknodBody{}, nil
	case Rmknod:
		return &RmknodBody{}, nil
	case Treadlink:
		return &TreadlinkBody{}, nil
	case Rreadlink:
		return &RreadlinkBody{}, nil
	case Tlock:
		return &TlockBody{}, nil
	case Rlock:
		return &RlockBody{}, nil
	case Tgetlock:
		return &TgetlockBody{}, nil
	case Rgetlock:
		return &RgetlockBody{}, nil
	case Txattrwalk:
		return &TxattrwalkBody{}, nil
	case Rxattrwalk:
		return &RxattrwalkBody{}, nil
	case Txattrcreate:
		return &TxattrcreateBody{}, nil
	case Rxattrcreate:
		return &RxattrcreateBody{}, nil
	default:
		return nil, fmt.Errorf("%w", &NotImplementedError{Type: typ})
	}
}

// --- Tversion/Rversion ---

type TversionBody struct {
	Msize   uint32
	Version string
}

func (m *TversionBody) encode(e *encBuf) error { e.u32(m.Msize); return e.str(m.Version) }
func (m *TversionBody) decode(d *decBuf) error {
	v, err := d.u32()
	if err != nil {
		return err
	}
	m.Msize = v
	m.Version, err = d.str()
	return err
}

type RversionBody struct {
	Msize   uint32
	Version string
}

func (m *RversionBody) encode(e *encBuf) error { e.u32(m.Msize); return e.str(m.Version) }
func (m *RversionBody) decode(d *decBuf) error {
	v, err := d.u32()
	if err != nil {
		return err
	}
	m.Msize = v
	m.Version, err = d.str()
	return err
}

// --- Tauth/Rauth ---

type TauthBody struct {
	Afid  uint32
	Uname string
	Aname string
	NUID  uint32 // .L extension: numeric uid, may be NOFID-equivalent -1
}

func (m *TauthBody) encode(e *encBuf) error {
	e.u32(m.Afid)
	if err := e.str(m.Uname); err != nil {
		return err
	}
	if err := e.str(m.Aname); err != nil {
		return err
	}
	e.u32(m.NUID)
	return nil
}
func (m *TauthBody) decode(d *decBuf) error {
	var err error
	if m.Afid, err = d.u32(); err != nil {
		return err
	}
	if m.Uname, err = d.str(); err != nil {
		return err
	}
	if m.Aname, err = d.str(); err != nil {
		return err
	}
	m.NUID, err = d.u32()
	return err
}

type RauthBody struct {
	Aqid QID
}

func (m *RauthBody) encode(e *encBuf) error { e.qid(m.Aqid); return nil }
func (m *RauthBody) decode(d *decBuf) error {
	q, err := d.qid()
	m.Aqid = q
	return err
}

// --- Tattach/Rattach ---

type TattachBody struct {
	Fid   uint32
	Afid  uint32
	Uname string
	Aname string
	NUID  uint32
}

func (m *TattachBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u32(m.Afid)
	if err := e.str(m.Uname); err != nil {
		return err
	}
	if err := e.str(m.Aname); err != nil {
		return err
	}
	e.u32(m.NUID)
	return nil
}
func (m *TattachBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Afid, err = d.u32(); err != nil {
		return err
	}
	if m.Uname, err = d.str(); err != nil {
		return err
	}
	if m.Aname, err = d.str(); err != nil {
		return err
	}
	m.NUID, err = d.u32()
	return err
}

type RattachBody struct {
	Qid QID
}

func (m *RattachBody) encode(e *encBuf) error { e.qid(m.Qid); return nil }
func (m *RattachBody) decode(d *decBuf) error {
	q, err := d.qid()
	m.Qid = q
	return err
}

// --- Rerror ---

// RerrorBody carries both the human-readable message and the errno, per the
// 9P2000.L Rerror extension (spec.md §6).
type RerrorBody struct {
	Ename string
	Errno uint32
}

func (m *RerrorBody) encode(e *encBuf) error {
	if err := e.str(m.Ename); err != nil {
		return err
	}
	e.u32(m.Errno)
	return nil
}
func (m *RerrorBody) decode(d *decBuf) error {
	var err error
	if m.Ename, err = d.str(); err != nil {
		return err
	}
	m.Errno, err = d.u32()
	return err
}

// --- Tflush/Rflush ---

type TflushBody struct {
	Oldtag uint16
}

func (m *TflushBody) encode(e *encBuf) error { e.u16(m.Oldtag); return nil }
func (m *TflushBody) decode(d *decBuf) error {
	v, err := d.u16()
	m.Oldtag = v
	return err
}

type RflushBody struct{}

func (m *RflushBody) encode(e *encBuf) error { return nil }
func (m *RflushBody) decode(d *decBuf) error { return nil }

// --- Twalk/Rwalk ---

type TwalkBody struct {
	Fid    uint32
	Newfid uint32
	Wname  []string
}

func (m *TwalkBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u32(m.Newfid)
	if len(m.Wname) > 16 {
		return fmt.Errorf("%w: walk carries %d names, max 16", ErrMalformed, len(m.Wname))
	}
	e.u16(uint16(len(m.Wname)))
	for _, n := range m.Wname {
		if err := e.str(n); err != nil {
			return err
		}
	}
	return nil
}
func (m *TwalkBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Newfid, err = d.u32(); err != nil {
		return err
	}
	n, err := d.u16()
	if err != nil {
		return err
	}
	if n > 16 {
		return fmt.Errorf("%w: walk carries %d names, max 16", ErrMalformed, n)
	}
	m.Wname = make([]string, n)
	for i := range m.Wname {
		if m.Wname[i], err = d.str(); err != nil {
			return err
		}
	}
	return nil
}

type RwalkBody struct {
	Wqid []QID
}

func (m *RwalkBody) encode(e *encBuf) error {
	e.u16(uint16(len(m.Wqid)))
	for _, q := range m.Wqid {
		e.qid(q)
	}
	return nil
}
func (m *RwalkBody) decode(d *decBuf) error {
	n, err := d.u16()
	if err != nil {
		return err
	}
	m.Wqid = make([]QID, n)
	for i := range m.Wqid {
		if m.Wqid[i], err = d.qid(); err != nil {
			return err
		}
	}
	return nil
}

// --- Topen/Ropen ---

type TopenBody struct {
	Fid   uint32
	Flags uint32
}

func (m *TopenBody) encode(e *encBuf) error { e.u32(m.Fid); e.u32(m.Flags); return nil }
func (m *TopenBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	m.Flags, err = d.u32()
	return err
}

type RopenBody struct {
	Qid    QID
	Iounit uint32
}

func (m *RopenBody) encode(e *encBuf) error { e.qid(m.Qid); e.u32(m.Iounit); return nil }
func (m *RopenBody) decode(d *decBuf) error {
	var err error
	if m.Qid, err = d.qid(); err != nil {
		return err
	}
	m.Iounit, err = d.u32()
	return err
}

// --- Tcreate/Rcreate ---

type TcreateBody struct {
	Fid   uint32
	Name  string
	Flags uint32
	Mode  uint32
	Gid   uint32
}

func (m *TcreateBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	if err := e.str(m.Name); err != nil {
		return err
	}
	e.u32(m.Flags)
	e.u32(m.Mode)
	e.u32(m.Gid)
	return nil
}
func (m *TcreateBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Name, err = d.str(); err != nil {
		return err
	}
	if m.Flags, err = d.u32(); err != nil {
		return err
	}
	if m.Mode, err = d.u32(); err != nil {
		return err
	}
	m.Gid, err = d.u32()
	return err
}

type RcreateBody struct {
	Qid    QID
	Iounit uint32
}

func (m *RcreateBody) encode(e *encBuf) error { e.qid(m.Qid); e.u32(m.Iounit); return nil }
func (m *RcreateBody) decode(d *decBuf) error {
	var err error
	if m.Qid, err = d.qid(); err != nil {
		return err
	}
	m.Iounit, err = d.u32()
	return err
}

// --- Tread/Rread ---

type TreadBody struct {
	Fid    uint32
	Offset uint64
	Count  uint32
}

func (m *TreadBody) encode(e *encBuf) error { e.u32(m.Fid); e.u64(m.Offset); e.u32(m.Count); return nil }
func (m *TreadBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Offset, err = d.u64(); err != nil {
		return err
	}
	m.Count, err = d.u32()
	return err
}

type RreadBody struct {
	Data []byte
}

func (m *RreadBody) encode(e *encBuf) error { return e.bytes(m.Data) }
func (m *RreadBody) decode(d *decBuf) error {
	b, err := d.bytesN()
	m.Data = b
	return err
}

// --- Twrite/Rwrite ---

type TwriteBody struct {
	Fid    uint32
	Offset uint64
	Data   []byte
}

func (m *TwriteBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u64(m.Offset)
	return e.bytes(m.Data)
}
func (m *TwriteBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Offset, err = d.u64(); err != nil {
		return err
	}
	m.Data, err = d.bytesN()
	return err
}

type RwriteBody struct {
	Count uint32
}

func (m *RwriteBody) encode(e *encBuf) error { e.u32(m.Count); return nil }
func (m *RwriteBody) decode(d *decBuf) error {
	v, err := d.u32()
	m.Count = v
	return err
}

// --- Tclunk/Rclunk, Tremove/Rremove, Tfsync/Rfsync (fid-only messages) ---

type fidOnlyBody struct{ Fid uint32 }

func (m *fidOnlyBody) encode(e *encBuf) error { e.u32(m.Fid); return nil }
func (m *fidOnlyBody) decode(d *decBuf) error {
	v, err := d.u32()
	m.Fid = v
	return err
}

type TclunkBody struct{ fidOnlyBody }
type TremoveBody struct{ fidOnlyBody }
type TfsyncBody struct{ fidOnlyBody }
type TgetattrFidBody struct{ fidOnlyBody }

type emptyBody struct{}

func (emptyBody) encode(e *encBuf) error { return nil }
func (emptyBody) decode(d *decBuf) error { return nil }

type RclunkBody struct{ emptyBody }
type RremoveBody struct{ emptyBody }
type RfsyncBody struct{ emptyBody }

// --- Tgetattr/Rgetattr ---

// Getattr request mask bits (subset actually honored by the backend).
const (
	GetattrMode uint64 = 1 << iota
	GetattrNlink
	GetattrUID
	GetattrGID
	GetattrRdev
	GetattrAtime
	GetattrMtime
	GetattrCtime
	GetattrIno
	GetattrSize
	GetattrBlocks
	GetattrBasic = GetattrMode | GetattrNlink | GetattrUID | GetattrGID | GetattrRdev |
		GetattrAtime | GetattrMtime | GetattrCtime | GetattrIno | GetattrSize | GetattrBlocks
)

type TgetattrBody struct {
	Fid         uint32
	RequestMask uint64
}

func (m *TgetattrBody) encode(e *encBuf) error { e.u32(m.Fid); e.u64(m.RequestMask); return nil }
func (m *TgetattrBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	m.RequestMask, err = d.u64()
	return err
}

type RgetattrBody struct {
	Valid    uint64
	Qid      QID
	Mode     uint32
	UID, GID uint32
	Nlink    uint64
	Rdev     uint64
	Size     uint64
	Blksize  uint64
	Blocks   uint64
	Atime    int64
	AtimeN   int64
	Mtime    int64
	MtimeN   int64
	Ctime    int64
	CtimeN   int64
}

func (m *RgetattrBody) encode(e *encBuf) error {
	e.u64(m.Valid)
	e.qid(m.Qid)
	e.u32(m.Mode)
	e.u32(m.UID)
	e.u32(m.GID)
	e.u64(m.Nlink)
	e.u64(m.Rdev)
	e.u64(m.Size)
	e.u64(m.Blksize)
	e.u64(m.Blocks)
	e.u64(uint64(m.Atime))
	e.u64(uint64(m.AtimeN))
	e.u64(uint64(m.Mtime))
	e.u64(uint64(m.MtimeN))
	e.u64(uint64(m.Ctime))
	e.u64(uint64(m.CtimeN))
	return nil
}
func (m *RgetattrBody) decode(d *decBuf) error {
	var err error
	read := func(dst *uint64) {
		if err != nil {
			return
		}
		*dst, err = d.u64()
	}
	read(&m.Valid)
	if err != nil {
		return err
	}
	m.Qid, err = d.qid()
	if err != nil {
		return err
	}
	if m.Mode, err = d.u32(); err != nil {
		return err
	}
	if m.UID, err = d.u32(); err != nil {
		return err
	}
	if m.GID, err = d.u32(); err != nil {
		return err
	}
	read(&m.Nlink)
	read(&m.Rdev)
	read(&m.Size)
	read(&m.Blksize)
	read(&m.Blocks)
	var t uint64
	read(&t)
	m.Atime = int64(t)
	read(&t)
	m.AtimeN = int64(t)
	read(&t)
	m.Mtime = int64(t)
	read(&t)
	m.MtimeN = int64(t)
	read(&t)
	m.Ctime = int64(t)
	read(&t)
	m.CtimeN = int64(t)
	return err
}

// --- Tsetattr/Rsetattr ---

const (
	SetattrMode uint32 = 1 << iota
	SetattrUID
	SetattrGID
	SetattrSize
	SetattrAtime
	SetattrMtime
	SetattrCtimeSet
	SetattrAtimeSet
	SetattrMtimeSet
)

type TsetattrBody struct {
	Fid    uint32
	Valid  uint32
	Mode   uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Atime  int64
	AtimeN int64
	Mtime  int64
	MtimeN int64
}

func (m *TsetattrBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u32(m.Valid)
	e.u32(m.Mode)
	e.u32(m.UID)
	e.u32(m.GID)
	e.u64(m.Size)
	e.u64(uint64(m.Atime))
	e.u64(uint64(m.AtimeN))
	e.u64(uint64(m.Mtime))
	e.u64(uint64(m.MtimeN))
	return nil
}
func (m *TsetattrBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Valid, err = d.u32(); err != nil {
		return err
	}
	if m.Mode, err = d.u32(); err != nil {
		return err
	}
	if m.UID, err = d.u32(); err != nil {
		return err
	}
	if m.GID, err = d.u32(); err != nil {
		return err
	}
	if m.Size, err = d.u64(); err != nil {
		return err
	}
	var t uint64
	if t, err = d.u64(); err != nil {
		return err
	}
	m.Atime = int64(t)
	if t, err = d.u64(); err != nil {
		return err
	}
	m.AtimeN = int64(t)
	if t, err = d.u64(); err != nil {
		return err
	}
	m.Mtime = int64(t)
	if t, err = d.u64(); err != nil {
		return err
	}
	m.MtimeN = int64(t)
	return nil
}

type RsetattrBody struct{ emptyBody }

// --- Treaddir/Rreaddir ---

type TreaddirBody struct {
	Fid    uint32
	Offset uint64
	Count  uint32
}

func (m *TreaddirBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u64(m.Offset)
	e.u32(m.Count)
	return nil
}
func (m *TreaddirBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Offset, err = d.u64(); err != nil {
		return err
	}
	m.Count, err = d.u32()
	return err
}

// DirEntry is one Rreaddir record.
type DirEntry struct {
	Qid    QID
	Offset uint64
	Type   uint8
	Name   string
}

type RreaddirBody struct {
	Data []byte // pre-encoded directory entries, already clamped to Count
}

func (m *RreaddirBody) encode(e *encBuf) error { return e.bytes(m.Data) }
func (m *RreaddirBody) decode(d *decBuf) error {
	b, err := d.bytesN()
	m.Data = b
	return err
}

// EncodeDirEntry appends one directory record in Rreaddir's internal
// encoding (qid, offset, type, name) to buf. Used by the readdir backend to
// build RreaddirBody.Data directly, since readdir entries are not a
// separately-dispatched Body.
func EncodeDirEntry(buf []byte, d DirEntry) []byte {
	e := &encBuf{b: buf}
	e.qid(d.Qid)
	e.u64(d.Offset)
	e.u8(d.Type)
	_ = e.str(d.Name)
	return e.b
}

// --- Tstatfs/Rstatfs ---

type TstatfsBody struct{ fidOnlyBody }

type RstatfsBody struct {
	Type, Bsize             uint32
	Blocks, Bfree, Bavail   uint64
	Files, Ffree            uint64
	Fsid                    uint64
	Namelen                 uint32
}

func (m *RstatfsBody) encode(e *encBuf) error {
	e.u32(m.Type)
	e.u32(m.Bsize)
	e.u64(m.Blocks)
	e.u64(m.Bfree)
	e.u64(m.Bavail)
	e.u64(m.Files)
	e.u64(m.Ffree)
	e.u64(m.Fsid)
	e.u32(m.Namelen)
	return nil
}
func (m *RstatfsBody) decode(d *decBuf) error {
	var err error
	if m.Type, err = d.u32(); err != nil {
		return err
	}
	if m.Bsize, err = d.u32(); err != nil {
		return err
	}
	if m.Blocks, err = d.u64(); err != nil {
		return err
	}
	if m.Bfree, err = d.u64(); err != nil {
		return err
	}
	if m.Bavail, err = d.u64(); err != nil {
		return err
	}
	if m.Files, err = d.u64(); err != nil {
		return err
	}
	if m.Ffree, err = d.u64(); err != nil {
		return err
	}
	if m.Fsid, err = d.u64(); err != nil {
		return err
	}
	m.Namelen, err = d.u32()
	return err
}

// --- Trename/Rrename ---

type TrenameBody struct {
	Fid    uint32
	Newdir uint32
	Name   string
}

func (m *TrenameBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u32(m.Newdir)
	return e.str(m.Name)
}
func (m *TrenameBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Newdir, err = d.u32(); err != nil {
		return err
	}
	m.Name, err = d.str()
	return err
}

type RrenameBody struct{ emptyBody }

// --- Tlink/Rlink ---

type TlinkBody struct {
	Dfid   uint32
	Fid    uint32
	Name   string
}

func (m *TlinkBody) encode(e *encBuf) error {
	e.u32(m.Dfid)
	e.u32(m.Fid)
	return e.str(m.Name)
}
func (m *TlinkBody) decode(d *decBuf) error {
	var err error
	if m.Dfid, err = d.u32(); err != nil {
		return err
	}
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	m.Name, err = d.str()
	return err
}

type RlinkBody struct{ emptyBody }

// --- Tsymlink/Rsymlink ---

type TsymlinkBody struct {
	Fid     uint32
	Name    string
	Target  string
	Gid     uint32
}

func (m *TsymlinkBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	if err := e.str(m.Name); err != nil {
		return err
	}
	if err := e.str(m.Target); err != nil {
		return err
	}
	e.u32(m.Gid)
	return nil
}
func (m *TsymlinkBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Name, err = d.str(); err != nil {
		return err
	}
	if m.Target, err = d.str(); err != nil {
		return err
	}
	m.Gid, err = d.u32()
	return err
}

type RsymlinkBody struct {
	Qid QID
}

func (m *RsymlinkBody) encode(e *encBuf) error { e.qid(m.Qid); return nil }
func (m *RsymlinkBody) decode(d *decBuf) error {
	q, err := d.qid()
	m.Qid = q
	return err
}

// --- Tmknod/Rmknod ---

type TmknodBody struct {
	Fid   uint32
	Name  string
	Mode  uint32
	Major uint32
	Minor uint32
	Gid   uint32
}

func (m *TmknodBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	if err := e.str(m.Name); err != nil {
		return err
	}
	e.u32(m.Mode)
	e.u32(m.Major)
	e.u32(m.Minor)
	e.u32(m.Gid)
	return nil
}
func (m *TmknodBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Name, err = d.str(); err != nil {
		return err
	}
	if m.Mode, err = d.u32(); err != nil {
		return err
	}
	if m.Major, err = d.u32(); err != nil {
		return err
	}
	if m.Minor, err = d.u32(); err != nil {
		return err
	}
	m.Gid, err = d.u32()
	return err
}

type RmknodBody struct {
	Qid QID
}

func (m *RmknodBody) encode(e *encBuf) error { e.qid(m.Qid); return nil }
func (m *RmknodBody) decode(d *decBuf) error {
	q, err := d.qid()
	m.Qid = q
	return err
}

// --- Treadlink/Rreadlink ---

type TreadlinkBody struct{ fidOnlyBody }

type RreadlinkBody struct {
	Target string
}

func (m *RreadlinkBody) encode(e *encBuf) error { return e.str(m.Target) }
func (m *RreadlinkBody) decode(d *decBuf) error {
	s, err := d.str()
	m.Target = s
	return err
}

// --- Tlock/Rlock ---

// Lock types and status, per 9P2000.L.
const (
	LockTypeRdlck uint8 = iota
	LockTypeWrlck
	LockTypeUnlck
)

const (
	LockStatusSuccess uint8 = iota
	LockStatusBlocked
	LockStatusError
	LockStatusGrace
)

type TlockBody struct {
	Fid         uint32
	Type        uint8
	Flags       uint32
	Start       uint64
	Length      uint64
	ProcID      uint32
	ClientID    string
}

func (m *TlockBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u8(m.Type)
	e.u32(m.Flags)
	e.u64(m.Start)
	e.u64(m.Length)
	e.u32(m.ProcID)
	return e.str(m.ClientID)
}
func (m *TlockBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Type, err = d.u8(); err != nil {
		return err
	}
	if m.Flags, err = d.u32(); err != nil {
		return err
	}
	if m.Start, err = d.u64(); err != nil {
		return err
	}
	if m.Length, err = d.u64(); err != nil {
		return err
	}
	if m.ProcID, err = d.u32(); err != nil {
		return err
	}
	m.ClientID, err = d.str()
	return err
}

type RlockBody struct {
	Status uint8
}

func (m *RlockBody) encode(e *encBuf) error { e.u8(m.Status); return nil }
func (m *RlockBody) decode(d *decBuf) error {
	v, err := d.u8()
	m.Status = v
	return err
}

// --- Tgetlock/Rgetlock ---

type TgetlockBody struct {
	Fid      uint32
	Type     uint8
	Start    uint64
	Length   uint64
	ProcID   uint32
	ClientID string
}

func (m *TgetlockBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u8(m.Type)
	e.u64(m.Start)
	e.u64(m.Length)
	e.u32(m.ProcID)
	return e.str(m.ClientID)
}
func (m *TgetlockBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Type, err = d.u8(); err != nil {
		return err
	}
	if m.Start, err = d.u64(); err != nil {
		return err
	}
	if m.Length, err = d.u64(); err != nil {
		return err
	}
	if m.ProcID, err = d.u32(); err != nil {
		return err
	}
	m.ClientID, err = d.str()
	return err
}

type RgetlockBody struct {
	Type     uint8
	Start    uint64
	Length   uint64
	ProcID   uint32
	ClientID string
}

func (m *RgetlockBody) encode(e *encBuf) error {
	e.u8(m.Type)
	e.u64(m.Start)
	e.u64(m.Length)
	e.u32(m.ProcID)
	return e.str(m.ClientID)
}
func (m *RgetlockBody) decode(d *decBuf) error {
	var err error
	if m.Type, err = d.u8(); err != nil {
		return err
	}
	if m.Start, err = d.u64(); err != nil {
		return err
	}
	if m.Length, err = d.u64(); err != nil {
		return err
	}
	if m.ProcID, err = d.u32(); err != nil {
		return err
	}
	m.ClientID, err = d.str()
	return err
}

// --- Txattrwalk/Rxattrwalk ---

type TxattrwalkBody struct {
	Fid    uint32
	Newfid uint32
	Name   string
}

func (m *TxattrwalkBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	e.u32(m.Newfid)
	return e.str(m.Name)
}
func (m *TxattrwalkBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Newfid, err = d.u32(); err != nil {
		return err
	}
	m.Name, err = d.str()
	return err
}

type RxattrwalkBody struct {
	Size uint64
}

func (m *RxattrwalkBody) encode(e *encBuf) error { e.u64(m.Size); return nil }
func (m *RxattrwalkBody) decode(d *decBuf) error {
	v, err := d.u64()
	m.Size = v
	return err
}

// --- Txattrcreate/Rxattrcreate ---

type TxattrcreateBody struct {
	Fid   uint32
	Name  string
	Size  uint64
	Flags uint32
}

func (m *TxattrcreateBody) encode(e *encBuf) error {
	e.u32(m.Fid)
	if err := e.str(m.Name); err != nil {
		return err
	}
	e.u64(m.Size)
	e.u32(m.Flags)
	return nil
}
func (m *TxattrcreateBody) decode(d *decBuf) error {
	var err error
	if m.Fid, err = d.u32(); err != nil {
		return err
	}
	if m.Name, err = d.str(); err != nil {
		return err
	}
	if m.Size, err = d.u64(); err != nil {
		return err
	}
	m.Flags, err = d.u32()
	return err
}

type RxattrcreateBody struct{ emptyBody }
