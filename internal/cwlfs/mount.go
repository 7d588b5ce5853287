// internal/cwlfs/mount.go
package cwlfs

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"cwl-mount/internal/partition"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog/log"
)

const (
	dirMode  = syscall.S_IFDIR | 0o555
	fileMode = syscall.S_IFREG | 0o444
)

// Options 는 FUSE 마운트 설정.
type Options struct {
	// MountPoint 는 마운트할 디렉토리. 없으면 만든다.
	MountPoint string

	// Adapter 는 모든 노드가 위임하는 경로 계약.
	Adapter *Adapter

	// FsName 은 /proc/mounts 에 보이는 source 이름 (보통 로그 그룹 이름).
	FsName string

	// AllowOther 는 다른 사용자의 접근을 허용한다.
	// /etc/fuse.conf 에 user_allow_other 가 있어야 한다.
	AllowOther bool

	// Debug 는 go-fuse 의 요청 단위 로그를 켠다.
	Debug bool
}

// Mount 는 읽기 전용 파일시스템을 마운트한다.
// 호출 측은 반환된 Server 에 대해 Wait / Unmount 를 책임진다.
func Mount(opts Options) (*fuse.Server, error) {
	if opts.MountPoint == "" {
		return nil, fmt.Errorf("mount point is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if opts.FsName == "" {
		opts.FsName = "cwl-mount"
	}

	if err := os.MkdirAll(opts.MountPoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mount point %s: %w", opts.MountPoint, err)
	}

	root := &dirNode{adapter: opts.Adapter, node: opts.Adapter.Layout().Root()}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(opts.MountPoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     opts.FsName,
			Name:       "cwl-mount",
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", opts.MountPoint, err)
	}

	log.Info().Str("mount_point", opts.MountPoint).Str("fs_name", opts.FsName).Msg("filesystem mounted")
	return server, nil
}

// inodeNumber 는 노드의 고정 inode 번호.
// 같은 경로는 항상 같은 번호를 받는다 (구간 시작 초 + 깊이).
// 1 은 루트 예약이라 +1 을 더한다.
func inodeNumber(n partition.Node) uint64 {
	return (uint64(n.Range.Start/1000)+1)<<3 | uint64(n.Kind)
}

func fillAttr(a *Adapter, n partition.Node, out *fuse.Attr) {
	attr := a.layout.Attributes(n)
	if attr.Dir {
		out.Mode = dirMode
		out.Nlink = 2
	} else {
		out.Mode = fileMode
		out.Nlink = 1
		out.Size = uint64(attr.Size)
	}
	out.Ino = inodeNumber(n)
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())

	mtime := n.Range.StartTime()
	out.SetTimes(&mtime, &mtime, &mtime)
}

func newChild(ctx context.Context, parent *gofuse.Inode, a *Adapter, n partition.Node) *gofuse.Inode {
	if n.IsDir() {
		return parent.NewInode(ctx, &dirNode{adapter: a, node: n},
			gofuse.StableAttr{Mode: syscall.S_IFDIR, Ino: inodeNumber(n)})
	}
	return parent.NewInode(ctx, &fileNode{adapter: a, node: n},
		gofuse.StableAttr{Mode: syscall.S_IFREG, Ino: inodeNumber(n)})
}

// dirNode 는 루트 / 연 / 월 / 일 디렉토리.
type dirNode struct {
	gofuse.Inode
	adapter *Adapter
	node    partition.Node
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)
var _ gofuse.NodeSetattrer = (*dirNode)(nil)

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	child, errno := d.adapter.LookupNode(d.node, name)
	if errno != 0 {
		return nil, errno
	}
	fillAttr(d.adapter, child, &out.Attr)
	return newChild(ctx, d.EmbeddedInode(), d.adapter, child), 0
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, errno := d.adapter.ReaddirNode(d.node)
	if errno != 0 {
		return nil, errno
	}

	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.Dir {
			mode = syscall.S_IFDIR
		}
		list = append(list, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return gofuse.NewListDirStream(list), 0
}

func (d *dirNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(d.adapter, d.node, &out.Attr)
	return 0
}

func (d *dirNode) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

// fileNode 는 버킷 파일.
type fileNode struct {
	gofuse.Inode
	adapter *Adapter
	node    partition.Node
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeSetattrer = (*fileNode)(nil)

// Open 은 DIRECT_IO 로 연다. 보고하는 크기가 sentinel 이므로
// 커널 page cache 가 크기를 믿고 0 으로 채우지 않게 한다.
func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	fh, errno := f.adapter.OpenNode(f.node, flags)
	if errno != 0 {
		return nil, 0, errno
	}
	return &fileHandle{adapter: f.adapter, id: fh}, fuse.FOPEN_DIRECT_IO, 0
}

func (f *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(f.adapter, f.node, &out.Attr)
	return 0
}

func (f *fileNode) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

// fileHandle 은 Adapter 핸들 id 를 감싼다.
type fileHandle struct {
	adapter *Adapter
	id      uint64
}

var _ gofuse.FileReader = (*fileHandle)(nil)
var _ gofuse.FileReleaser = (*fileHandle)(nil)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, errno := h.adapter.Read(ctx, h.id, off, len(dest))
	if errno != 0 {
		return nil, errno
	}
	return fuse.ReadResultData(data), 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	return h.adapter.Release(h.id)
}
