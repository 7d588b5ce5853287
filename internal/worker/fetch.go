// internal/worker/fetch.go
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"cwl-mount/internal/cwl"
	"cwl-mount/internal/pool"

	"github.com/rs/zerolog/log"
)

// fetchRange
// -----------------------
// 버킷 구간의 모든 페이지를 받아 한 덩어리 바이트로 만든다.
//   - 이벤트마다 template 으로 포맷 + '\n'
//   - 원격이 준 순서 그대로 (재정렬 없음)
//   - 누적 버퍼는 pool 에서 빌리고, 결과는 복사본을 돌려준다
func (c *Coordinator) fetchRange(ctx context.Context, key Key) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	token := ""
	for pageNo := 1; ; pageNo++ {
		page, err := c.fetchPage(ctx, key, token)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", key, pageNo, err)
		}
		atomic.AddInt64(&c.metrics.FetchPagesTotal, 1)

		for i := range page.Events {
			buf.Write(c.tmpl.Append(buf.AvailableBuffer(), &page.Events[i]))
			buf.WriteByte('\n')
		}
		atomic.AddInt64(&c.metrics.EventsFormattedTotal, int64(len(page.Events)))

		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// fetchPage
// -----------------------
// 페이지 하나를 가져온다.
//   - transient 에러: 같은 token 으로 최대 PageRetries 회 재시도 (시도는 PageRetries+1 회)
//   - fatal 에러: 바로 실패
//   - backoff: minBackoff 부터 2배씩, 최대 maxBackoff
//   - shutdown-safe: ctx.Done() 시 즉시 중단
func (c *Coordinator) fetchPage(ctx context.Context, key Key, token string) (cwl.Page, error) {
	attempts := c.cfg.PageRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := c.minBackoff

	for attempt := 1; attempt <= attempts; attempt++ {

		// shutdown 체크
		select {
		case <-ctx.Done():
			return cwl.Page{}, ctx.Err()
		default:
		}

		page, err := c.client.FilterLogEvents(ctx, key.LogGroup, key.Range.Start, key.Range.End, token)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !cwl.IsTransient(err) || attempt == attempts {
			break
		}

		atomic.AddInt64(&c.metrics.FetchRetriesTotal, 1)
		log.Debug().Err(err).
			Str("bucket", key.String()).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("transient page error, retrying")

		select {
		case <-ctx.Done():
			return cwl.Page{}, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}
	}

	return cwl.Page{}, lastErr
}
