// internal/cwlfs/adapter.go
package cwlfs

import (
	"context"
	"sync"
	"sync/atomic"
	"syscall"

	"cwl-mount/internal/metrics"
	"cwl-mount/internal/partition"

	"github.com/rs/zerolog/log"
)

// Fetcher 는 버킷 구간의 포맷된 바이트를 돌려준다 (worker.Coordinator).
type Fetcher interface {
	Get(ctx context.Context, r partition.Range) ([]byte, error)
}

// Adapter
// ------------------------------------------------------------
// 경로 단위 파일시스템 계약. FUSE 노드들은 이 타입에 위임만 한다.
//
//   - lookup / getattr / readdir 은 Layout 계산만 한다 (원격 호출 없음)
//   - open 은 핸들을 만들고, 첫 read 에서 버킷 바이트를 핸들에 고정한다
//   - 한 번 고정된 핸들은 캐시가 비워지거나 갱신되어도 같은 내용을 본다
type Adapter struct {
	layout  *partition.Layout
	cache   Fetcher
	metrics *metrics.Metrics

	nextHandle uint64
	handles    map[uint64]*handle
	handlesMu  sync.RWMutex
}

// handle 은 열린 버킷 파일 하나.
type handle struct {
	node partition.Node

	mu     sync.Mutex
	data   []byte
	pinned bool
}

// NewAdapter 는 Layout 과 캐시를 묶는다.
func NewAdapter(layout *partition.Layout, cache Fetcher, m *metrics.Metrics) *Adapter {
	return &Adapter{
		layout:     layout,
		cache:      cache,
		metrics:    m,
		handles:    make(map[uint64]*handle),
		nextHandle: 1,
	}
}

// Layout 은 경로 모델을 돌려준다.
func (a *Adapter) Layout() *partition.Layout {
	return a.layout
}

// ---------------------------------------------------------------
// 경로 단위 연산
// ---------------------------------------------------------------

// Lookup 은 parentPath 아래 name 의 속성을 돌려준다.
func (a *Adapter) Lookup(parentPath, name string) (partition.Attr, syscall.Errno) {
	n, errno := a.LookupNode(a.layout.Resolve(parentPath), name)
	if errno != 0 {
		return partition.Attr{}, errno
	}
	return a.layout.Attributes(n), 0
}

// Getattr 은 p 의 속성을 돌려준다.
func (a *Adapter) Getattr(p string) (partition.Attr, syscall.Errno) {
	n := a.layout.Resolve(p)
	if !n.Exists() {
		return partition.Attr{}, syscall.ENOENT
	}
	return a.layout.Attributes(n), 0
}

// Readdir 은 p 의 자식 목록을 돌려준다.
func (a *Adapter) Readdir(p string) ([]partition.Entry, syscall.Errno) {
	return a.ReaddirNode(a.layout.Resolve(p))
}

// Open 은 p 를 읽기 전용으로 연다.
func (a *Adapter) Open(p string, flags uint32) (uint64, syscall.Errno) {
	return a.OpenNode(a.layout.Resolve(p), flags)
}

// ---------------------------------------------------------------
// 노드 단위 연산 (FUSE 노드가 이미 해석된 Node 를 들고 있을 때)
// ---------------------------------------------------------------

// LookupNode 는 이미 해석된 parent 아래 name 을 해석한다.
func (a *Adapter) LookupNode(parent partition.Node, name string) (partition.Node, syscall.Errno) {
	if !parent.Exists() {
		return partition.NotFound, syscall.ENOENT
	}
	if !parent.IsDir() {
		return partition.NotFound, syscall.ENOTDIR
	}
	n := a.layout.Child(parent, name)
	if !n.Exists() {
		return partition.NotFound, syscall.ENOENT
	}
	return n, 0
}

// ReaddirNode 는 디렉토리 노드의 자식 목록.
func (a *Adapter) ReaddirNode(n partition.Node) ([]partition.Entry, syscall.Errno) {
	switch {
	case !n.Exists():
		return nil, syscall.ENOENT
	case !n.IsDir():
		return nil, syscall.ENOTDIR
	}
	return a.layout.Children(n), 0
}

// OpenNode 는 버킷 노드에 대한 핸들을 만든다.
//
//   - 쓰기 의도 (O_WRONLY, O_RDWR, O_APPEND, O_CREAT) → EROFS
//   - O_TRUNC → EACCES
//   - 디렉토리 → EISDIR
func (a *Adapter) OpenNode(n partition.Node, flags uint32) (uint64, syscall.Errno) {
	if !n.Exists() {
		return 0, syscall.ENOENT
	}

	f := int(flags)
	if f&syscall.O_ACCMODE != syscall.O_RDONLY || f&(syscall.O_APPEND|syscall.O_CREAT) != 0 {
		return 0, syscall.EROFS
	}
	if f&syscall.O_TRUNC != 0 {
		return 0, syscall.EACCES
	}
	if n.IsDir() {
		return 0, syscall.EISDIR
	}

	a.handlesMu.Lock()
	fh := a.nextHandle
	a.nextHandle++
	a.handles[fh] = &handle{node: n}
	a.handlesMu.Unlock()

	atomic.AddInt64(&a.metrics.FSOpensTotal, 1)
	atomic.AddInt64(&a.metrics.FSOpenHandles, 1)
	return fh, 0
}

// Read 는 핸들 fh 의 [offset, offset+length) 를 돌려준다.
//
//   - 첫 성공 read 가 버킷 바이트를 핸들에 고정한다
//   - 끝을 넘는 요청은 짧게, offset >= 길이면 0 바이트 (EOF)
//   - fetch 실패 → EIO. 고정하지 않으므로 다음 read 가 다시 시도한다
func (a *Adapter) Read(ctx context.Context, fh uint64, offset int64, length int) ([]byte, syscall.Errno) {
	atomic.AddInt64(&a.metrics.FSReadsTotal, 1)

	h := a.handle(fh)
	if h == nil {
		return nil, syscall.EBADF
	}
	if offset < 0 || length < 0 {
		return nil, syscall.EINVAL
	}

	data, err := h.snapshot(ctx, a.cache)
	if err != nil {
		atomic.AddInt64(&a.metrics.FSReadErrorsTotal, 1)
		log.Warn().Err(err).Str("path", h.node.Path).Msg("read failed")
		return nil, syscall.EIO
	}

	if offset >= int64(len(data)) {
		return nil, 0
	}
	end := offset + int64(length)
	if end > int64(len(data)) {
		end = int64(len(data))
	}

	out := data[offset:end]
	atomic.AddInt64(&a.metrics.FSReadBytesTotal, int64(len(out)))
	return out, 0
}

// Release 는 핸들을 버린다. 진행 중인 fetch 는 건드리지 않는다.
func (a *Adapter) Release(fh uint64) syscall.Errno {
	a.handlesMu.Lock()
	_, ok := a.handles[fh]
	delete(a.handles, fh)
	a.handlesMu.Unlock()

	if !ok {
		return syscall.EBADF
	}
	atomic.AddInt64(&a.metrics.FSOpenHandles, -1)
	return 0
}

// OpenHandles 는 열린 핸들 수.
func (a *Adapter) OpenHandles() int {
	a.handlesMu.RLock()
	defer a.handlesMu.RUnlock()
	return len(a.handles)
}

func (a *Adapter) handle(fh uint64) *handle {
	a.handlesMu.RLock()
	defer a.handlesMu.RUnlock()
	return a.handles[fh]
}

// snapshot 은 고정된 바이트를 돌려주고, 없으면 캐시에서 받아 고정한다.
// 캐시 대기 중에는 h.mu 를 잡지 않는다 (같은 핸들의 다른 read 가 ctx 로 빠질 수 있게).
func (h *handle) snapshot(ctx context.Context, cache Fetcher) ([]byte, error) {
	h.mu.Lock()
	if h.pinned {
		data := h.data
		h.mu.Unlock()
		return data, nil
	}
	h.mu.Unlock()

	data, err := cache.Get(ctx, h.node.Range)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pinned {
		h.data = data
		h.pinned = true
	}
	return h.data, nil
}
