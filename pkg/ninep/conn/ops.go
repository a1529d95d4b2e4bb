//go:build linux

package conn

import (
	"context"
	"fmt"

	"github.com/marmos91/diod/internal/logger"
	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/backend/posix"
	"github.com/marmos91/diod/pkg/export"
	"github.com/marmos91/diod/pkg/identity"
	"github.com/marmos91/diod/pkg/ninep/fidtable"
	"github.com/marmos91/diod/pkg/ninep/respool"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

// posixRoot opens entry's root directory through pool, applying the
// export's read-only policy (spec.md §4.8/§4.9).
func posixRoot(pool *respool.PathPool, entry export.Entry) (backend.Object, error) {
	return posix.NewRoot(pool, entry.Path, entry.ReadOnly, entry.ShareFD)
}

// dispatch routes one non-version, non-flush message to its handler,
// translating the backend/fidtable error it returns into Rerror (spec.md
// §4.1: "every operation either replies with the matching R-message or a
// single Rerror"). ctx is cancelled the moment a Tflush targets this tag;
// every handler threads it into doAs so a flushed request stops waiting on
// its backend call instead of replying after the fact (spec.md §4.5).
func (c *Conn) dispatch(ctx context.Context, msg *wire.Message) {
	tag := msg.Header.Tag
	switch body := msg.Body.(type) {
	case *wire.TattachBody:
		c.opAttach(ctx, tag, body)
	case *wire.TauthBody:
		c.opAuth(ctx, tag, body)
	case *wire.TwalkBody:
		c.opWalk(ctx, tag, body)
	case *wire.TopenBody:
		c.opOpen(ctx, tag, body)
	case *wire.TcreateBody:
		c.opCreate(ctx, tag, body)
	case *wire.TreadBody:
		c.opRead(ctx, tag, body)
	case *wire.TwriteBody:
		c.opWrite(ctx, tag, body)
	case *wire.TclunkBody:
		c.opClunk(ctx, tag, body)
	case *wire.TremoveBody:
		c.opRemove(ctx, tag, body)
	case *wire.TgetattrBody:
		c.opGetattr(ctx, tag, body)
	case *wire.TsetattrBody:
		c.opSetattr(ctx, tag, body)
	case *wire.TreaddirBody:
		c.opReaddir(ctx, tag, body)
	case *wire.TfsyncBody:
		c.opFsync(ctx, tag, body)
	case *wire.TstatfsBody:
		c.opStatfs(ctx, tag, body)
	case *wire.TrenameBody:
		c.opRename(ctx, tag, body)
	case *wire.TlinkBody:
		c.opLink(ctx, tag, body)
	case *wire.TsymlinkBody:
		c.opSymlink(ctx, tag, body)
	case *wire.TmknodBody:
		c.opMknod(ctx, tag, body)
	case *wire.TreadlinkBody:
		c.opReadlink(ctx, tag, body)
	case *wire.TlockBody:
		c.opLock(ctx, tag, body)
	case *wire.TgetlockBody:
		c.opGetlock(ctx, tag, body)
	case *wire.TxattrwalkBody:
		c.opXattrwalk(ctx, tag, body)
	case *wire.TxattrcreateBody:
		c.opXattrcreate(ctx, tag, body)
	default:
		c.sendError(tag, fmt.Errorf("%w", &wire.NotImplementedError{Type: msg.Header.Type}))
	}
}

// opAuth begins (or continues) the afid handshake. The afid's credential
// blob accumulates via ordinary Twrite calls against the same fid number,
// looked up first in c.afids before the regular fid table (spec.md §5.3).
func (c *Conn) opAuth(ctx context.Context, tag uint16, req *wire.TauthBody) {
	if c.cfg.NoAuth {
		c.sendError(tag, fmt.Errorf("%w: server configured with no-auth", auth.ErrUnsupportedMechanism))
		return
	}
	c.mu.Lock()
	_, exists := c.afids[req.Afid]
	if !exists {
		c.afids[req.Afid] = &afidState{}
	}
	c.mu.Unlock()
	if exists {
		c.sendError(tag, fmt.Errorf("%w: afid %d already in use", fidtable.ErrFidInUse, req.Afid))
		return
	}
	c.reply(wire.Rauth, tag, &wire.RauthBody{Aqid: wire.QID{Type: wire.QTFILE, Path: uint64(req.Afid)}})
}

// resolveIdentity turns a Tattach's uname/afid into the auth.Identity that
// will own the new root fid, honoring the server's allsquash policy, no-auth
// mode (or a NOFID afid), and a completed afid handshake in that priority order
// (spec.md §4.3, §4.9).
func (c *Conn) resolveIdentity(req *wire.TattachBody) (auth.Identity, error) {
	if c.cfg.AllSquash {
		u := c.cfg.Identity.SquashUser()
		return userToIdentity(u), nil
	}

	if c.cfg.NoAuth || req.Afid == wire.NOFID {
		var u *identity.User
		var err error
		if req.Uname != "" {
			u, err = c.cfg.Identity.ResolveUname(req.Uname)
		} else {
			u, err = c.cfg.Identity.ResolveUID(req.NUID)
		}
		if err != nil {
			return auth.Identity{}, err
		}
		return userToIdentity(u), nil
	}

	c.mu.Lock()
	st, ok := c.afids[req.Afid]
	if ok {
		delete(c.afids, req.Afid)
	}
	c.mu.Unlock()
	if !ok {
		return auth.Identity{}, fmt.Errorf("%w: afid %d not authenticated", auth.ErrAuthFailed, req.Afid)
	}
	result, err := c.cfg.Auth.Authenticate(context.Background(), st.blob)
	if err != nil {
		return auth.Identity{}, err
	}
	return result.Identity, nil
}

func userToIdentity(u *identity.User) auth.Identity {
	if u == nil {
		return auth.Identity{Anonymous: true}
	}
	return auth.Identity{Uname: u.Uname, UID: u.UID, GID: u.GID, Groups: u.Groups}
}

func (c *Conn) opAttach(ctx context.Context, tag uint16, req *wire.TattachBody) {
	ident, err := c.resolveIdentity(req)
	if err != nil {
		c.sendError(tag, err)
		return
	}

	var root backend.Object
	if req.Aname == "ctl" {
		root, err = c.cfg.Ctl.Root(req.Aname)
	} else {
		var entry export.Entry
		entry, err = c.cfg.Exports.Resolve(req.Aname)
		if err == nil {
			if entry.RequirePrivPort && !c.cfg.PeerIsPriv {
				err = fmt.Errorf("%w: export requires a privileged client port", export.ErrUserNotAllowed)
			} else if !entry.Allows(ident.Uname) {
				err = fmt.Errorf("%w: %s", export.ErrUserNotAllowed, ident.Uname)
			} else {
				root, err = posixRoot(c.cfg.PoolFor(entry), entry)
			}
		}
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}

	var qid wire.QID
	if !c.doAs(ctx, ident, func() { qid = root.Qid() }) {
		return
	}

	fid := &fidtable.Fid{User: ident, Object: root, Qid: qid}
	if err := c.fids.Insert(req.Fid, fid); err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rattach, tag, &wire.RattachBody{Qid: qid})
}

func (c *Conn) opWalk(ctx context.Context, tag uint16, req *wire.TwalkBody) {
	src, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if src.IsOpen() {
		c.sendError(tag, fmt.Errorf("%w: cannot walk an open fid", fidtable.ErrFidOpen))
		return
	}

	cur := src.Object
	qids := make([]wire.QID, 0, len(req.Wname))
	var walkErr error
	if !c.doAs(ctx, src.User, func() {
		for _, name := range req.Wname {
			next, err := cur.Walk(name)
			if err != nil {
				walkErr = err
				return
			}
			cur = next
			qids = append(qids, cur.Qid())
		}
	}) {
		return
	}

	// Partial success: stop at the first failing component, but only
	// report an Rerror if NOTHING walked at all (spec.md §4.4 / §8
	// property 7 — a partial Rwalk is valid whenever len(Wname) > 0).
	if walkErr != nil && len(qids) == 0 && len(req.Wname) > 0 {
		c.sendError(tag, walkErr)
		return
	}
	// A partial walk reports the qids it reached but leaves the source fid
	// untouched and creates no newfid.
	if walkErr != nil {
		c.reply(wire.Rwalk, tag, &wire.RwalkBody{Wqid: qids})
		return
	}

	if req.Fid == req.Newfid {
		if len(qids) > 0 {
			src.Object = cur
			src.Qid = qids[len(qids)-1]
		}
		c.reply(wire.Rwalk, tag, &wire.RwalkBody{Wqid: qids})
		return
	}

	clone := fidtable.Clone(src)
	if len(qids) > 0 {
		clone.Object = cur
		clone.Qid = qids[len(qids)-1]
	}
	if err := c.fids.Insert(req.Newfid, clone); err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rwalk, tag, &wire.RwalkBody{Wqid: qids})
}

func (c *Conn) opOpen(ctx context.Context, tag uint16, req *wire.TopenBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if fid.IsOpen() {
		c.sendError(tag, fmt.Errorf("%w: fid %d already open", fidtable.ErrFidOpen, req.Fid))
		return
	}

	var file backend.File
	var iounit uint32
	if !c.doAs(ctx, fid.User, func() { file, iounit, err = fid.Object.Open(req.Flags) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	fid.File, fid.Opened, fid.Flags, fid.Iounit = file, true, req.Flags, iounit
	c.reply(wire.Ropen, tag, &wire.RopenBody{Qid: fid.Qid, Iounit: iounit})
}

func (c *Conn) opCreate(ctx context.Context, tag uint16, req *wire.TcreateBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if fid.IsOpen() {
		c.sendError(tag, fmt.Errorf("%w: fid %d already open", fidtable.ErrFidOpen, req.Fid))
		return
	}

	var obj backend.Object
	var file backend.File
	var iounit uint32
	if !c.doAs(ctx, fid.User, func() {
		obj, file, iounit, err = fid.Object.Create(req.Name, req.Flags, req.Mode, req.Gid)
	}) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}

	var qid wire.QID
	if !c.doAs(ctx, fid.User, func() { qid = obj.Qid() }) {
		return
	}

	fid.Object, fid.File, fid.Opened, fid.Flags, fid.Iounit, fid.Qid = obj, file, true, req.Flags, iounit, qid
	c.reply(wire.Rcreate, tag, &wire.RcreateBody{Qid: qid, Iounit: iounit})
}

// maxReadCount clamps a Tread/Treaddir Count to what the negotiated msize
// can actually carry back in the matching Rread/Rreaddir, so a short read
// succeeds instead of failing Encode's size check (spec.md §8 property 2).
func (c *Conn) maxReadCount(requested uint32) uint32 {
	if c.msize <= wire.DataReplyOverhead {
		return 0
	}
	max := c.msize - wire.DataReplyOverhead
	if requested > max {
		return max
	}
	return requested
}

func (c *Conn) opRead(ctx context.Context, tag uint16, req *wire.TreadBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}

	count := c.maxReadCount(req.Count)

	if fid.IsXattr() {
		var data []byte
		if !c.doAs(ctx, fid.User, func() { data, err = fid.Object.XattrRead(fid.XattrName, req.Offset, count) }) {
			return
		}
		if err != nil {
			c.sendError(tag, err)
			return
		}
		c.reply(wire.Rread, tag, &wire.RreadBody{Data: data})
		return
	}

	if fid.File == nil {
		c.sendError(tag, fmt.Errorf("%w: fid %d not open", fidtable.ErrFidInUse, req.Fid))
		return
	}
	buf := make([]byte, count)
	var n int
	if !c.doAs(ctx, fid.User, func() { n, err = fid.File.ReadAt(buf, int64(req.Offset)) }) {
		return
	}
	if err != nil && n == 0 {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rread, tag, &wire.RreadBody{Data: buf[:n]})
}

func (c *Conn) opWrite(ctx context.Context, tag uint16, req *wire.TwriteBody) {
	// A write targeting an afid's handshake blob never reaches the fid
	// table at all (spec.md §5.3: the afid is not a filesystem fid).
	c.mu.Lock()
	st, isAfid := c.afids[req.Fid]
	c.mu.Unlock()
	if isAfid {
		st.blob = append(st.blob, req.Data...)
		c.reply(wire.Rwrite, tag, &wire.RwriteBody{Count: uint32(len(req.Data))})
		return
	}

	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}

	if fid.IsXattr() {
		var n uint32
		if !c.doAs(ctx, fid.User, func() { n, err = fid.Object.XattrWrite(fid.XattrName, req.Offset, req.Data) }) {
			return
		}
		if err != nil {
			c.sendError(tag, err)
			return
		}
		c.reply(wire.Rwrite, tag, &wire.RwriteBody{Count: n})
		return
	}

	if fid.File == nil {
		c.sendError(tag, fmt.Errorf("%w: fid %d not open", fidtable.ErrFidInUse, req.Fid))
		return
	}
	var n int
	if !c.doAs(ctx, fid.User, func() { n, err = fid.File.WriteAt(req.Data, int64(req.Offset)) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rwrite, tag, &wire.RwriteBody{Count: uint32(n)})
}

func (c *Conn) opClunk(ctx context.Context, tag uint16, req *wire.TclunkBody) {
	c.mu.Lock()
	_, isAfid := c.afids[req.Fid]
	if isAfid {
		delete(c.afids, req.Fid)
	}
	c.mu.Unlock()
	if isAfid {
		c.reply(wire.Rclunk, tag, &wire.RclunkBody{})
		return
	}

	fid, err := c.fids.Remove(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if fid.File != nil {
		var closeErr error
		if !c.doAs(ctx, fid.User, func() { closeErr = fid.File.Close() }) {
			return
		}
		if closeErr != nil {
			logger.Debug("clunk: close file", logger.Fid(req.Fid), logger.Err(closeErr))
		}
	}
	c.reply(wire.Rclunk, tag, &wire.RclunkBody{})
}

func (c *Conn) opRemove(ctx context.Context, tag uint16, req *wire.TremoveBody) {
	fid, err := c.fids.Remove(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var removeErr error
	if !c.doAs(ctx, fid.User, func() {
		removeErr = fid.Object.Remove()
		if fid.File != nil {
			_ = fid.File.Close()
		}
	}) {
		return
	}
	if removeErr != nil {
		c.sendError(tag, removeErr)
		return
	}
	c.reply(wire.Rremove, tag, &wire.RremoveBody{})
}

func (c *Conn) opGetattr(ctx context.Context, tag uint16, req *wire.TgetattrBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var attr wire.RgetattrBody
	if !c.doAs(ctx, fid.User, func() { attr, err = fid.Object.Getattr(req.RequestMask) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rgetattr, tag, &attr)
}

func (c *Conn) opSetattr(ctx context.Context, tag uint16, req *wire.TsetattrBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if !c.doAs(ctx, fid.User, func() { err = fid.Object.Setattr(*req) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rsetattr, tag, &wire.RsetattrBody{})
}

func (c *Conn) opReaddir(ctx context.Context, tag uint16, req *wire.TreaddirBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	count := c.maxReadCount(req.Count)
	var entries []wire.DirEntry
	if !c.doAs(ctx, fid.User, func() { entries, err = fid.Object.Readdir(req.Offset, count) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var data []byte
	for _, e := range entries {
		data = wire.EncodeDirEntry(data, e)
	}
	c.reply(wire.Rreaddir, tag, &wire.RreaddirBody{Data: data})
}

func (c *Conn) opFsync(ctx context.Context, tag uint16, req *wire.TfsyncBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if fid.File == nil {
		c.sendError(tag, fmt.Errorf("%w: fid %d not open", fidtable.ErrFidInUse, req.Fid))
		return
	}
	if !c.doAs(ctx, fid.User, func() { err = fid.File.Fsync() }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rfsync, tag, &wire.RfsyncBody{})
}

func (c *Conn) opStatfs(ctx context.Context, tag uint16, req *wire.TstatfsBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var st wire.RstatfsBody
	if !c.doAs(ctx, fid.User, func() { st, err = fid.Object.Statfs() }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rstatfs, tag, &st)
}

func (c *Conn) opRename(ctx context.Context, tag uint16, req *wire.TrenameBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	newDir, err := c.fids.Lookup(req.Newdir)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if !c.doAs(ctx, fid.User, func() { err = fid.Object.Rename(newDir.Object, req.Name) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rrename, tag, &wire.RrenameBody{})
}

func (c *Conn) opLink(ctx context.Context, tag uint16, req *wire.TlinkBody) {
	dfid, err := c.fids.Lookup(req.Dfid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	target, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if !c.doAs(ctx, dfid.User, func() { err = target.Object.Link(dfid.Object, req.Name) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rlink, tag, &wire.RlinkBody{})
}

func (c *Conn) opSymlink(ctx context.Context, tag uint16, req *wire.TsymlinkBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var obj backend.Object
	if !c.doAs(ctx, fid.User, func() { obj, err = fid.Object.Symlink(req.Name, req.Target, req.Gid) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var qid wire.QID
	if !c.doAs(ctx, fid.User, func() { qid = obj.Qid() }) {
		return
	}
	c.reply(wire.Rsymlink, tag, &wire.RsymlinkBody{Qid: qid})
}

func (c *Conn) opMknod(ctx context.Context, tag uint16, req *wire.TmknodBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var obj backend.Object
	if !c.doAs(ctx, fid.User, func() { obj, err = fid.Object.Mknod(req.Name, req.Mode, req.Major, req.Minor, req.Gid) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var qid wire.QID
	if !c.doAs(ctx, fid.User, func() { qid = obj.Qid() }) {
		return
	}
	c.reply(wire.Rmknod, tag, &wire.RmknodBody{Qid: qid})
}

func (c *Conn) opReadlink(ctx context.Context, tag uint16, req *wire.TreadlinkBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var target string
	if !c.doAs(ctx, fid.User, func() { target, err = fid.Object.Readlink() }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rreadlink, tag, &wire.RreadlinkBody{Target: target})
}

func (c *Conn) opLock(ctx context.Context, tag uint16, req *wire.TlockBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if fid.File == nil {
		c.sendError(tag, fmt.Errorf("%w: fid %d not open", fidtable.ErrFidInUse, req.Fid))
		return
	}
	var status uint8
	if !c.doAs(ctx, fid.User, func() { status, err = fid.File.Lock(*req) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rlock, tag, &wire.RlockBody{Status: status})
}

func (c *Conn) opGetlock(ctx context.Context, tag uint16, req *wire.TgetlockBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if fid.File == nil {
		c.sendError(tag, fmt.Errorf("%w: fid %d not open", fidtable.ErrFidInUse, req.Fid))
		return
	}
	var resp wire.RgetlockBody
	if !c.doAs(ctx, fid.User, func() { resp, err = fid.File.Getlock(*req) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rgetlock, tag, &resp)
}

func (c *Conn) opXattrwalk(ctx context.Context, tag uint16, req *wire.TxattrwalkBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	var size uint64
	if !c.doAs(ctx, fid.User, func() { size, err = fid.Object.Xattrwalk(req.Name) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	clone := fidtable.Clone(fid)
	clone.XattrName, clone.XattrSize, clone.Opened = req.Name, size, true
	if err := c.fids.Insert(req.Newfid, clone); err != nil {
		c.sendError(tag, err)
		return
	}
	c.reply(wire.Rxattrwalk, tag, &wire.RxattrwalkBody{Size: size})
}

func (c *Conn) opXattrcreate(ctx context.Context, tag uint16, req *wire.TxattrcreateBody) {
	fid, err := c.fids.Lookup(req.Fid)
	if err != nil {
		c.sendError(tag, err)
		return
	}
	if !c.doAs(ctx, fid.User, func() { err = fid.Object.XattrCreate(req.Name, req.Size, req.Flags) }) {
		return
	}
	if err != nil {
		c.sendError(tag, err)
		return
	}
	fid.XattrName, fid.XattrSize, fid.Opened = req.Name, req.Size, true
	c.reply(wire.Rxattrcreate, tag, &wire.RxattrcreateBody{})
}
