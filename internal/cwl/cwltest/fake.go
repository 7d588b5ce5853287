// Package cwltest provides an in-memory cwl.Client for tests.
package cwltest

import (
	"context"
	"strconv"
	"sync"

	"cwl-mount/internal/cwl"
	"cwl-mount/internal/model"
)

// Request 는 Fake 가 받은 FilterLogEvents 호출 한 건.
type Request struct {
	LogGroup   string
	Start, End int64
	Token      string
}

// Fake
// ------------------------------------------------------------
// 로그 그룹별 이벤트를 메모리에 들고 FilterLogEvents 를 흉내 낸다.
//
//   - 이벤트는 Add 한 순서 그대로 돌려준다 (정렬하지 않음)
//   - PageSize 개씩 잘라 "p1", "p2" ... 토큰으로 이어 준다
//   - Fail / FailOnToken 으로 호출을 실패시킬 수 있다
//   - Gate 가 있으면 호출마다 Gate 에서 값을 받을 때까지 막는다
type Fake struct {
	PageSize int
	Gate     chan struct{}

	mu       sync.Mutex
	groups   map[string][]model.Event
	failures []error
	byToken  map[string][]error
	requests []Request
}

// New 는 빈 Fake 를 만든다.
func New() *Fake {
	return &Fake{PageSize: 100, groups: make(map[string][]model.Event)}
}

// AddGroup 은 이벤트 없는 로그 그룹을 등록한다.
func (f *Fake) AddGroup(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[name]; !ok {
		f.groups[name] = nil
	}
}

// Add 는 로그 그룹에 이벤트를 덧붙인다. LogGroupName 은 채워 준다.
func (f *Fake) Add(group string, events ...model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range events {
		ev.LogGroupName = group
		f.groups[group] = append(f.groups[group], ev)
	}
}

// Fail 은 다음 FilterLogEvents 호출들이 errs 를 차례로 돌려주게 한다.
func (f *Fake) Fail(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

// FailOnToken 은 nextToken 이 token 인 호출들이 errs 를 차례로 돌려주게 한다.
// 페이지 중간에서의 재시도를 재현할 때 쓴다.
func (f *Fake) FailOnToken(token string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byToken == nil {
		f.byToken = make(map[string][]error)
	}
	f.byToken[token] = append(f.byToken[token], errs...)
}

// Requests 는 지금까지 받은 호출 목록의 복사본.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Calls 는 FilterLogEvents 호출 수.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *Fake) DescribeLogGroup(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.groups[name]
	return ok, nil
}

func (f *Fake) FilterLogEvents(ctx context.Context, logGroup string, startMs, endMs int64, nextToken string) (cwl.Page, error) {
	f.mu.Lock()
	f.requests = append(f.requests, Request{LogGroup: logGroup, Start: startMs, End: endMs, Token: nextToken})
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return cwl.Page{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return cwl.Page{}, err
	}
	if errs := f.byToken[nextToken]; len(errs) > 0 {
		f.byToken[nextToken] = errs[1:]
		return cwl.Page{}, errs[0]
	}

	events, ok := f.groups[logGroup]
	if !ok {
		return cwl.Page{}, &cwl.RemoteError{Op: "FilterLogEvents", Err: cwl.ErrLogGroupNotFound}
	}

	var matched []model.Event
	for _, ev := range events {
		if ev.Timestamp >= startMs && ev.Timestamp < endMs {
			matched = append(matched, ev)
		}
	}

	page := 0
	if nextToken != "" {
		n, err := strconv.Atoi(nextToken[1:])
		if err != nil {
			return cwl.Page{}, &cwl.RemoteError{Op: "FilterLogEvents", Err: err}
		}
		page = n
	}

	size := f.PageSize
	if size <= 0 {
		size = len(matched) + 1
	}
	lo := page * size
	if lo > len(matched) {
		lo = len(matched)
	}
	hi := lo + size
	if hi > len(matched) {
		hi = len(matched)
	}

	out := cwl.Page{Events: append([]model.Event(nil), matched[lo:hi]...)}
	if hi < len(matched) {
		out.NextToken = "p" + strconv.Itoa(page+1)
	}
	return out, nil
}

var _ cwl.Client = (*Fake)(nil)
