package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 마운트 상태를 나타내는 카운터 모음이다.
// 모든 필드는 sync/atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// 파일시스템 레벨 지표
	// ======================

	// FSOpensTotal
	// - 버킷 파일 open 성공 횟수.
	FSOpensTotal int64

	// FSReadsTotal
	// - read 호출 수 (성공/실패 무관).
	FSReadsTotal int64

	// FSReadErrorsTotal
	// - EIO 로 끝난 read 수. fetch 실패가 사용자에게 보인 횟수.
	FSReadErrorsTotal int64

	// FSReadBytesTotal
	// - read 로 돌려준 바이트 합.
	FSReadBytesTotal int64

	// FSOpenHandles
	// - 현재 열려 있는 파일 핸들 수 (gauge).
	FSOpenHandles int64

	// ======================
	// 캐시 레벨 지표
	// ======================

	// CacheHitsTotal
	// - Ready 엔트리로 바로 응답한 Get 수.
	CacheHitsTotal int64

	// CacheWaitsTotal
	// - 이미 진행 중인 fetch 에 합류해 기다린 Get 수.
	// - 이 값이 크면 같은 버킷을 동시에 읽는 reader 가 많다는 뜻.
	CacheWaitsTotal int64

	// CacheMissesTotal
	// - 새 fetch 를 시작한 Get 수.
	CacheMissesTotal int64

	// CacheEvictionsTotal
	// - 바이트 상한으로 제거된 엔트리 수.
	CacheEvictionsTotal int64

	// CacheExpiredTotal
	// - idle TTL 또는 최근 버킷 freshness 로 제거된 엔트리 수.
	CacheExpiredTotal int64

	// CacheEntries / CacheBytes
	// - 현재 Ready 엔트리 수와 보관 바이트 (압축 시 압축 후 크기) (gauge).
	CacheEntries int64
	CacheBytes   int64

	// ======================
	// fetch / 원격 호출 지표
	// ======================

	// FetchesTotal / FetchErrorsTotal
	// - 버킷 단위 fetch 시작 수와 최종 실패 수.
	FetchesTotal     int64
	FetchErrorsTotal int64

	// FetchPagesTotal
	// - 성공한 페이지 수.
	FetchPagesTotal int64

	// FetchRetriesTotal
	// - transient 에러로 같은 페이지를 다시 시도한 횟수.
	FetchRetriesTotal int64

	// EventsFormattedTotal
	// - 포맷되어 캐시에 들어간 이벤트 수.
	EventsFormattedTotal int64

	// RemoteCallsTotal / RemoteErrorsTotal
	// - CloudWatch Logs API 호출 "시도" 수와 실패 수.
	// - retry 가 있으면 한 페이지에서도 여러 번 증가한다.
	RemoteCallsTotal  int64
	RemoteErrorsTotal int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "fs_opens_total=%d\n", atomic.LoadInt64(&m.FSOpensTotal))
	fmt.Fprintf(&sb, "fs_reads_total=%d\n", atomic.LoadInt64(&m.FSReadsTotal))
	fmt.Fprintf(&sb, "fs_read_errors_total=%d\n", atomic.LoadInt64(&m.FSReadErrorsTotal))
	fmt.Fprintf(&sb, "fs_read_bytes_total=%d\n", atomic.LoadInt64(&m.FSReadBytesTotal))
	fmt.Fprintf(&sb, "fs_open_handles=%d\n", atomic.LoadInt64(&m.FSOpenHandles))

	fmt.Fprintf(&sb, "cache_hits_total=%d\n", atomic.LoadInt64(&m.CacheHitsTotal))
	fmt.Fprintf(&sb, "cache_waits_total=%d\n", atomic.LoadInt64(&m.CacheWaitsTotal))
	fmt.Fprintf(&sb, "cache_misses_total=%d\n", atomic.LoadInt64(&m.CacheMissesTotal))
	fmt.Fprintf(&sb, "cache_evictions_total=%d\n", atomic.LoadInt64(&m.CacheEvictionsTotal))
	fmt.Fprintf(&sb, "cache_expired_total=%d\n", atomic.LoadInt64(&m.CacheExpiredTotal))
	fmt.Fprintf(&sb, "cache_entries=%d\n", atomic.LoadInt64(&m.CacheEntries))
	fmt.Fprintf(&sb, "cache_bytes=%d\n", atomic.LoadInt64(&m.CacheBytes))

	fmt.Fprintf(&sb, "fetches_total=%d\n", atomic.LoadInt64(&m.FetchesTotal))
	fmt.Fprintf(&sb, "fetch_errors_total=%d\n", atomic.LoadInt64(&m.FetchErrorsTotal))
	fmt.Fprintf(&sb, "fetch_pages_total=%d\n", atomic.LoadInt64(&m.FetchPagesTotal))
	fmt.Fprintf(&sb, "fetch_retries_total=%d\n", atomic.LoadInt64(&m.FetchRetriesTotal))
	fmt.Fprintf(&sb, "events_formatted_total=%d\n", atomic.LoadInt64(&m.EventsFormattedTotal))

	fmt.Fprintf(&sb, "remote_calls_total=%d\n", atomic.LoadInt64(&m.RemoteCallsTotal))
	fmt.Fprintf(&sb, "remote_errors_total=%d\n", atomic.LoadInt64(&m.RemoteErrorsTotal))

	return sb.String()
}
