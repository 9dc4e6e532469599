// Copyright 2020 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package statsfs materializes a stats.Source tree as a FUSE file
// system. Sources become directories, their descriptors become
// files: reading a file runs the aggregation engine, writing "0" to
// a writable file clears the underlying leaves.
//
// The tree is discovered dynamically through Lookup and Readdir, so
// sources added or removed after mounting appear without any
// notification plumbing. Directory and file nodes hold uncounted
// source pointers; a reference is taken per open file through
// TryGet, which makes opens race-free against a producer dropping
// its last reference.
package statsfs

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/hanwen/statsfs/stats"
)

// Options configures a statsfs mount.
type Options struct {
	// MountOptions are passed through to the FUSE server.
	MountOptions fuse.MountOptions
}

// Mount serves root at dir until the returned server is unmounted.
// The mount itself does not hold a reference on root; the caller
// must keep its reference for the lifetime of the mount.
func Mount(dir string, root *stats.Source, opts *Options) (*fuse.Server, error) {
	if opts == nil {
		opts = &Options{}
	}

	fsOpts := &fs.Options{
		MountOptions:       opts.MountOptions,
		DefaultPermissions: true,
		UID:                uint32(os.Getuid()),
		GID:                uint32(os.Getgid()),
	}
	if fsOpts.MountOptions.Name == "" {
		fsOpts.MountOptions.Name = "statsfs"
	}
	if fsOpts.MountOptions.FsName == "" {
		fsOpts.MountOptions.FsName = root.Name()
	}

	return fs.Mount(dir, &sourceDir{src: root}, fsOpts)
}

// Directory inode numbers must be stable across repeated lookups so
// the kernel sees one inode per source. The assigned number is
// cached in the source's presentation slot.
var (
	inoMu   sync.Mutex
	lastIno uint64 = 1 // 1 is the root
)

func dirIno(src *stats.Source) uint64 {
	inoMu.Lock()
	defer inoMu.Unlock()

	if ino, ok := src.Presentation().(uint64); ok {
		return ino
	}
	lastIno++
	src.SetPresentation(lastIno)
	return lastIno
}

// sourceDir presents one source as a directory.
type sourceDir struct {
	fs.Inode

	src *stats.Source
}

var _ = (fs.NodeReaddirer)((*sourceDir)(nil))
var _ = (fs.NodeLookuper)((*sourceDir)(nil))
var _ = (fs.NodeGetattrer)((*sourceDir)(nil))

func (d *sourceDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var list []fuse.DirEntry
	for _, v := range d.src.Values() {
		list = append(list, fuse.DirEntry{
			Name: v.Name,
			Mode: fuse.S_IFREG,
		})
	}
	for _, sub := range d.src.Subordinates() {
		list = append(list, fuse.DirEntry{
			Name: sub.Name(),
			Ino:  dirIno(sub),
			Mode: fuse.S_IFDIR,
		})
	}
	return fs.NewListDirStream(list), 0
}

func (d *sourceDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if v := d.src.LookupValue(name); v != nil {
		ch := d.NewInode(ctx, &valueFile{src: d.src, val: v},
			fs.StableAttr{Mode: fuse.S_IFREG})
		return ch, 0
	}

	if sub := d.src.LookupSubordinate(name); sub != nil {
		ch := d.NewInode(ctx, &sourceDir{src: sub},
			fs.StableAttr{Mode: fuse.S_IFDIR, Ino: dirIno(sub)})
		return ch, 0
	}

	return nil, syscall.ENOENT
}

func (d *sourceDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0755
	return 0
}

// valueFile presents one descriptor of a source. The source pointer
// is not counted; Open takes the per-handle reference.
type valueFile struct {
	fs.Inode

	src *stats.Source
	val *stats.Value
}

var _ = (fs.NodeOpener)((*valueFile)(nil))
var _ = (fs.NodeGetattrer)((*valueFile)(nil))
var _ = (fs.NodeSetattrer)((*valueFile)(nil))

func (f *valueFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	// The file may be opened while the last Put is running; the
	// try-get rejects exactly that window.
	if !f.src.TryGet() {
		return nil, 0, syscall.ENOENT
	}
	return &valueHandle{src: f.src, val: f.val}, fuse.FOPEN_DIRECT_IO, 0
}

func (f *valueFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = f.val.PresentationMode()
	return 0
}

// Setattr accepts size changes so that O_TRUNC opens (shell
// redirection) reach Write.
func (f *valueFile) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	out.Mode = f.val.PresentationMode()
	return 0
}

// valueHandle is one open file; it owns a source reference.
type valueHandle struct {
	src *stats.Source
	val *stats.Value
}

var _ = (fs.FileReader)((*valueHandle)(nil))
var _ = (fs.FileWriter)((*valueHandle)(nil))
var _ = (fs.FileFlusher)((*valueHandle)(nil))
var _ = (fs.FileReleaser)((*valueHandle)(nil))

func (h *valueHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	v, err := h.src.GetValue(h.val)
	if err != nil {
		return nil, syscall.ENOENT
	}

	var s string
	if h.val.Signed() {
		s = strconv.FormatInt(int64(v), 10)
	} else {
		s = strconv.FormatUint(v, 10)
	}
	data := []byte(s + "\n")

	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), 0
	}
	return fuse.ReadResultData(data[off:]), 0
}

func (h *valueHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if h.val.PresentationMode()&0222 == 0 {
		return 0, syscall.EACCES
	}

	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || n != 0 {
		return 0, syscall.EINVAL
	}

	if err := h.src.Clear(h.val); err != nil {
		return 0, syscall.ENOENT
	}
	return uint32(len(data)), 0
}

func (h *valueHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (h *valueHandle) Release(ctx context.Context) syscall.Errno {
	h.src.Put()
	return 0
}
