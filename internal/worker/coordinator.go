// internal/worker/coordinator.go
package worker

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cwl-mount/internal/config"
	"cwl-mount/internal/cwl"
	"cwl-mount/internal/format"
	"cwl-mount/internal/metrics"
	"cwl-mount/internal/partition"

	"github.com/klauspost/compress/s2"
	"github.com/rs/zerolog/log"
)

// ErrClosed 는 Shutdown 이후의 Get.
var ErrClosed = errors.New("bucket coordinator is shut down")

// Key 는 캐시 엔트리 식별자. 로그 그룹 + 버킷 구간.
type Key struct {
	LogGroup string
	Range    partition.Range
}

func (k Key) String() string {
	return k.LogGroup + " " + k.Range.String()
}

// entry 는 버킷 하나의 상태.
//
//	fetching: done 열림, ready=false
//	ready:    done 닫힘, ready=true, data 불변
//	failed:   done 닫힘, err != nil, map 에서 이미 제거됨
//
// data / err 는 done 이 닫히기 전에 한 번만 쓰이고 이후에는 읽기만 한다.
type entry struct {
	key  Key
	done chan struct{}

	data []byte // compress 모드면 s2 블록
	err  error

	// 아래는 Coordinator.mu 로 보호
	ready      bool
	lastAccess time.Time
	expiresAt  time.Time // zero 면 freshness 만료 없음
	elem       *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Coordinator
// ------------------------------------------------------------
// 버킷 캐시 + fetch 조정자.
//
//   - 버킷(Key)마다 엔트리는 최대 1개, 진행 중인 fetch 도 최대 1개
//   - 같은 버킷을 읽는 reader 들은 하나의 fetch 결과를 공유한다
//   - 실패한 엔트리는 바로 제거되어 다음 reader 가 다시 시도한다
//   - Ready 엔트리는 LRU(바이트 상한) / idle TTL / freshness 만료로 제거된다
//
// mu 는 map/LRU 장부에만 잡고, 원격 I/O 중에는 절대 잡지 않는다.
// fetch 는 reader ctx 가 아니라 Coordinator 수명 ctx 로 돈다.
// reader 가 포기해도 다른 reader 를 위해 fetch 는 끝까지 간다.
type Coordinator struct {
	cfg     config.Config
	metrics *metrics.Metrics
	client  cwl.Client
	tmpl    *format.Template

	now        func() time.Time
	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	entries map[Key]*entry
	lru     *list.List // front = 최근 접근
	bytes   int64
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewCoordinator 는 빈 캐시를 만든다. sweeper 는 Start 에서 시작한다.
func NewCoordinator(cfg config.Config, m *metrics.Metrics, client cwl.Client, tmpl *format.Template) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:        cfg,
		metrics:    m,
		client:     client,
		tmpl:       tmpl,
		now:        time.Now,
		minBackoff: 200 * time.Millisecond,
		maxBackoff: 2 * time.Second,
		entries:    make(map[Key]*entry),
		lru:        list.New(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 는 idle sweeper goroutine 을 띄운다.
// CacheIdleTTL 이 0 이고 freshness 만료도 없으면 띄우지 않는다.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		if c.cfg.CacheSweepInterval <= 0 || (c.cfg.CacheIdleTTL <= 0 && c.cfg.SettleDelay <= 0) {
			return
		}
		c.wg.Add(1)
		go c.sweepLoop()
	})
}

// Shutdown 은 진행 중인 fetch 를 취소하고 모든 goroutine 종료를 기다린다.
func (c *Coordinator) Shutdown() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
	})
	c.wg.Wait()
}

// Get 은 버킷 r 의 포맷된 바이트를 돌려준다.
//
//   - Ready 엔트리 → 즉시 반환
//   - 진행 중 fetch → 완료까지 대기 후 같은 결과
//   - 없음 → fetch 시작 후 대기
//
// ctx 가 끝나면 기다림만 멈추고 fetch 는 계속된다.
// 반환된 슬라이스는 다른 reader 와 공유되므로 수정하면 안 된다.
func (c *Coordinator) Get(ctx context.Context, r partition.Range) ([]byte, error) {
	key := Key{LogGroup: c.cfg.LogGroupName, Range: r}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	now := c.now()
	e, ok := c.entries[key]
	if ok && e.ready && e.expired(now) {
		c.removeLocked(e)
		atomic.AddInt64(&c.metrics.CacheExpiredTotal, 1)
		ok = false
	}

	switch {
	case ok && e.ready:
		e.lastAccess = now
		c.lru.MoveToFront(e.elem)
		data := e.data
		c.mu.Unlock()

		atomic.AddInt64(&c.metrics.CacheHitsTotal, 1)
		return c.decode(data)

	case ok:
		atomic.AddInt64(&c.metrics.CacheWaitsTotal, 1)

	default:
		e = &entry{key: key, done: make(chan struct{})}
		c.entries[key] = e
		c.wg.Add(1)
		go c.fetch(e)
		atomic.AddInt64(&c.metrics.CacheMissesTotal, 1)
	}
	c.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.err != nil {
		return nil, e.err
	}
	return c.decode(e.data)
}

// fetch 는 엔트리 하나의 유일한 fetch 소유자.
func (c *Coordinator) fetch(e *entry) {
	defer c.wg.Done()
	defer close(e.done)

	atomic.AddInt64(&c.metrics.FetchesTotal, 1)
	started := time.Now()

	data, err := c.fetchRange(c.ctx, e.key)

	var stored []byte
	if err == nil {
		stored = data
		if c.cfg.CacheCompress {
			stored = s2.Encode(nil, data)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		e.err = err
		if c.entries[e.key] == e {
			delete(c.entries, e.key)
		}
		atomic.AddInt64(&c.metrics.FetchErrorsTotal, 1)
		log.Warn().Err(err).Str("bucket", e.key.String()).Msg("bucket fetch failed")
		return
	}

	now := c.now()
	e.data = stored
	e.ready = true
	e.lastAccess = now
	if c.isRecent(e.key.Range, now) {
		e.expiresAt = now.Add(c.cfg.RecentTTL)
	}
	e.elem = c.lru.PushFront(e)
	c.bytes += int64(len(stored))
	atomic.AddInt64(&c.metrics.CacheEntries, 1)
	atomic.AddInt64(&c.metrics.CacheBytes, int64(len(stored)))

	c.evictLocked()

	log.Debug().
		Str("bucket", e.key.String()).
		Int("bytes", len(data)).
		Int("stored", len(stored)).
		Dur("took", time.Since(started)).
		Msg("bucket fetched")
}

// isRecent 는 버킷 끝이 now-SettleDelay 이후인지 (아직 이벤트가 들어올 수 있는지).
func (c *Coordinator) isRecent(r partition.Range, now time.Time) bool {
	if c.cfg.SettleDelay <= 0 {
		return false
	}
	return r.EndTime().After(now.Add(-c.cfg.SettleDelay))
}

// evictLocked 는 바이트 상한 아래로 내려갈 때까지 LRU 뒤쪽 Ready 엔트리를 제거한다.
// fetching 엔트리는 LRU 에 없으므로 대상이 아니다.
func (c *Coordinator) evictLocked() {
	for c.bytes > c.cfg.CacheMaxBytes {
		back := c.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		c.removeLocked(e)
		atomic.AddInt64(&c.metrics.CacheEvictionsTotal, 1)
		log.Trace().Str("bucket", e.key.String()).Msg("bucket evicted")
	}
}

// removeLocked 는 Ready 엔트리를 map/LRU 에서 뺀다.
// 이미 엔트리를 들고 있는 reader 는 영향을 받지 않는다.
func (c *Coordinator) removeLocked(e *entry) {
	if c.entries[e.key] == e {
		delete(c.entries, e.key)
	}
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
		c.bytes -= int64(len(e.data))
		atomic.AddInt64(&c.metrics.CacheEntries, -1)
		atomic.AddInt64(&c.metrics.CacheBytes, -int64(len(e.data)))
	}
	e.ready = false
}

// sweepLoop 는 CacheSweepInterval 마다 idle / 만료 엔트리를 정리한다.
func (c *Coordinator) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.CacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if n := c.sweep(c.now()); n > 0 {
				log.Debug().Int("removed", n).Msg("cache sweep")
			}
		}
	}
}

// sweep 은 now 기준으로 idle TTL 이 지났거나 freshness 가 만료된 Ready 엔트리를 제거한다.
func (c *Coordinator) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		idle := c.cfg.CacheIdleTTL > 0 && now.Sub(e.lastAccess) >= c.cfg.CacheIdleTTL
		if idle || e.expired(now) {
			c.removeLocked(e)
			atomic.AddInt64(&c.metrics.CacheExpiredTotal, 1)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *Coordinator) decode(data []byte) ([]byte, error) {
	if !c.cfg.CacheCompress {
		return data, nil
	}
	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decode cached bucket: %w", err)
	}
	return out, nil
}

// Len 은 map 에 있는 엔트리 수 (fetching 포함).
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes 는 Ready 엔트리가 차지하는 바이트 합.
func (c *Coordinator) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}
