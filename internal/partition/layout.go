// internal/partition/layout.go
package partition

import (
	"fmt"
	"strings"
	"time"
)

//
// layout.go
// ------------------------------------------------------------
// 파일시스템 경로 ↔ 시간 구간 매핑.
//
//	/                 Root
//	/YYYY             Year
//	/YYYY/MM          Month
//	/YYYY/MM/DD       Day
//	/YYYY/MM/DD/HH-MM Bucket (파일, [start, start+BucketWidth))
//
// 트리를 메모리에 만들지 않는다. 모든 노드는 경로 문자열에서
// 산술적으로 계산되며, lookup/readdir 은 네트워크를 전혀 타지 않는다.
// 셸 glob (/2021/12/04/00-{00..05}) 이 read 전에 lookup 을 수십 번
// 연달아 보내기 때문에 이 경로는 지연이 0 이어야 한다.
// ------------------------------------------------------------

const (
	// DefaultBucketWidth: 버킷 하나 = 1분.
	DefaultBucketWidth = time.Minute

	// DefaultFileSize: 버킷 파일이 보고하는 크기 (2^31-1).
	// 실제 크기는 fetch 전까지 알 수 없으므로 sentinel 값을 보고하고,
	// read 는 내용 끝에서 짧게 반환한다.
	DefaultFileSize int64 = 1<<31 - 1

	day = 24 * time.Hour
)

// Kind 는 경로가 가리키는 노드 종류. 값은 트리 깊이와 같다.
type Kind int

const (
	KindNotFound Kind = iota - 1
	KindRoot
	KindYear
	KindMonth
	KindDay
	KindBucket
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindYear:
		return "year"
	case KindMonth:
		return "month"
	case KindDay:
		return "day"
	case KindBucket:
		return "bucket"
	default:
		return "not-found"
	}
}

// Range 는 UTC epoch milliseconds 반열린 구간 [Start, End).
type Range struct {
	Start int64
	End   int64
}

func rangeOf(start, end time.Time) Range {
	return Range{Start: start.UnixMilli(), End: end.UnixMilli()}
}

// Duration 은 구간 길이.
func (r Range) Duration() time.Duration {
	return time.Duration(r.End-r.Start) * time.Millisecond
}

// Contains 는 o 가 r 안에 완전히 포함되는지 확인한다.
func (r Range) Contains(o Range) bool {
	return r.Start <= o.Start && o.End <= r.End
}

func (r Range) StartTime() time.Time { return time.UnixMilli(r.Start).UTC() }
func (r Range) EndTime() time.Time   { return time.UnixMilli(r.End).UTC() }

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.StartTime().Format(time.RFC3339), r.EndTime().Format(time.RFC3339))
}

// Node 는 한 번의 adapter 호출 동안만 존재하는 가상 디렉토리/파일.
type Node struct {
	Kind  Kind
	Range Range
	Name  string // 마지막 경로 세그먼트 (루트는 "")
	Path  string // 정규화된 절대 경로 ("/2021/12/04/00-00")

	year, month, dayOfMonth int
}

// NotFound 는 해석 불가능한 경로 결과.
var NotFound = Node{Kind: KindNotFound}

// IsDir 은 Root/Year/Month/Day 이면 true.
func (n Node) IsDir() bool {
	return n.Kind >= KindRoot && n.Kind < KindBucket
}

// Exists 는 NotFound 가 아니면 true.
func (n Node) Exists() bool {
	return n.Kind != KindNotFound
}

// Entry 는 readdir 결과 한 줄.
type Entry struct {
	Name string
	Dir  bool
}

// Attr 는 노드 속성. 디렉토리 크기는 0, 버킷은 sentinel 크기.
type Attr struct {
	Dir  bool
	Size int64
}

// Options 는 Layout 생성 파라미터.
type Options struct {
	// Epoch 는 루트에서 나열할 첫 연도를 정한다 (보통 로그 그룹 생성 시각).
	Epoch time.Time

	// BucketWidth 는 버킷 한 개의 시간 폭. 분 단위 정수여야 하고
	// 하루(24h)를 나누어 떨어뜨려야 한다. 0 이면 DefaultBucketWidth.
	BucketWidth time.Duration

	// FileSize 는 버킷 파일이 보고할 크기. 0 이면 DefaultFileSize.
	FileSize int64

	// Now 는 현재 시각. nil 이면 time.Now. 루트 연도 목록의 상한에만 쓰인다.
	Now func() time.Time
}

// Layout
// ------------------------------------------------------------
// 경로 ↔ 시간 구간 변환기. 생성 이후 상태가 없으므로
// 여러 FUSE goroutine 에서 동시에 써도 안전하다.
type Layout struct {
	epochYear     int
	widthMinutes  int
	fileSize      int64
	now           func() time.Time
	bucketsPerDay int
}

// NewLayout 은 Options 를 검증하고 Layout 을 만든다.
func NewLayout(opts Options) (*Layout, error) {
	if opts.BucketWidth == 0 {
		opts.BucketWidth = DefaultBucketWidth
	}
	if opts.FileSize == 0 {
		opts.FileSize = DefaultFileSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Epoch.IsZero() {
		return nil, fmt.Errorf("partition: epoch is required")
	}

	w := opts.BucketWidth
	if w < time.Minute || w%time.Minute != 0 {
		return nil, fmt.Errorf("partition: bucket width %s must be a whole number of minutes", w)
	}
	if day%w != 0 {
		return nil, fmt.Errorf("partition: bucket width %s does not divide 24h evenly", w)
	}
	if opts.FileSize < 0 {
		return nil, fmt.Errorf("partition: file size %d must not be negative", opts.FileSize)
	}

	epochYear := opts.Epoch.UTC().Year()
	if epochYear < 1 || epochYear > 9999 {
		return nil, fmt.Errorf("partition: epoch year %d out of range", epochYear)
	}

	return &Layout{
		epochYear:     epochYear,
		widthMinutes:  int(w / time.Minute),
		fileSize:      opts.FileSize,
		now:           opts.Now,
		bucketsPerDay: int(day / w),
	}, nil
}

// BucketWidth 는 설정된 버킷 폭.
func (l *Layout) BucketWidth() time.Duration {
	return time.Duration(l.widthMinutes) * time.Minute
}

// Years 는 루트에서 나열되는 연도의 [first, last] (양 끝 포함).
func (l *Layout) Years() (first, last int) {
	last = l.now().UTC().Year()
	if last < l.epochYear {
		last = l.epochYear
	}
	return l.epochYear, last
}

// Root 는 루트 노드.
func (l *Layout) Root() Node {
	first, last := l.Years()
	return Node{
		Kind:  KindRoot,
		Range: rangeOf(dateUTC(first, 1, 1), dateUTC(last+1, 1, 1)),
		Path:  "/",
	}
}

// Resolve 는 경로 문자열을 노드로 해석한다.
// 세그먼트 하나라도 형식/달력 범위가 맞지 않으면 NotFound.
func (l *Layout) Resolve(p string) Node {
	// 빈 세그먼트("//", 끝의 "/")만 건너뛴다. "." / ".." 은 정리하지 않고 Child 가 거절한다.
	n := l.Root()
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		n = l.Child(n, seg)
		if !n.Exists() {
			return NotFound
		}
	}
	return n
}

// Child 는 이미 해석된 parent 아래의 name 하나를 해석한다.
// FUSE lookup(parent, name) 이 부모 경로를 다시 파싱하지 않도록 쓰인다.
func (l *Layout) Child(parent Node, name string) Node {
	switch parent.Kind {
	case KindRoot:
		y, ok := parseDigits(name, 4)
		if !ok {
			return NotFound
		}
		if first, last := l.Years(); y < first || y > last {
			return NotFound
		}
		return l.yearNode(y)

	case KindYear:
		m, ok := parseDigits(name, 2)
		if !ok || m < 1 || m > 12 {
			return NotFound
		}
		return l.monthNode(parent.year, m)

	case KindMonth:
		d, ok := parseDigits(name, 2)
		if !ok || d < 1 || d > daysIn(parent.year, parent.month) {
			return NotFound
		}
		return l.dayNode(parent.year, parent.month, d)

	case KindDay:
		if len(name) != 5 || name[2] != '-' {
			return NotFound
		}
		hh, ok1 := parseDigits(name[:2], 2)
		mm, ok2 := parseDigits(name[3:], 2)
		if !ok1 || !ok2 || hh > 23 || mm > 59 {
			return NotFound
		}
		minuteOfDay := hh*60 + mm
		if minuteOfDay%l.widthMinutes != 0 {
			return NotFound
		}
		return l.bucketNode(parent, minuteOfDay/l.widthMinutes)
	}
	return NotFound
}

// Children 은 디렉토리의 자식 이름을 순서대로 만든다.
// 달력상 유효한 자식만 나열하며, 비어 있는 버킷을 미리 숨기지 않는다
// (비어 있는지는 read 시점에만 알 수 있다).
func (l *Layout) Children(n Node) []Entry {
	switch n.Kind {
	case KindRoot:
		first, last := l.Years()
		out := make([]Entry, 0, last-first+1)
		for y := first; y <= last; y++ {
			out = append(out, Entry{Name: fmt.Sprintf("%04d", y), Dir: true})
		}
		return out

	case KindYear:
		out := make([]Entry, 0, 12)
		for m := 1; m <= 12; m++ {
			out = append(out, Entry{Name: fmt.Sprintf("%02d", m), Dir: true})
		}
		return out

	case KindMonth:
		days := daysIn(n.year, n.month)
		out := make([]Entry, 0, days)
		for d := 1; d <= days; d++ {
			out = append(out, Entry{Name: fmt.Sprintf("%02d", d), Dir: true})
		}
		return out

	case KindDay:
		out := make([]Entry, 0, l.bucketsPerDay)
		for i := 0; i < l.bucketsPerDay; i++ {
			out = append(out, Entry{Name: l.bucketName(i), Dir: false})
		}
		return out
	}
	return nil
}

// Buckets 는 Day 노드의 모든 버킷 노드를 순서대로 반환한다.
func (l *Layout) Buckets(n Node) []Node {
	if n.Kind != KindDay {
		return nil
	}
	out := make([]Node, 0, l.bucketsPerDay)
	for i := 0; i < l.bucketsPerDay; i++ {
		out = append(out, l.bucketNode(n, i))
	}
	return out
}

// Attributes 는 노드 속성.
func (l *Layout) Attributes(n Node) Attr {
	if n.Kind == KindBucket {
		return Attr{Dir: false, Size: l.fileSize}
	}
	return Attr{Dir: true, Size: 0}
}

func (l *Layout) yearNode(y int) Node {
	name := fmt.Sprintf("%04d", y)
	return Node{
		Kind:  KindYear,
		Range: rangeOf(dateUTC(y, 1, 1), dateUTC(y+1, 1, 1)),
		Name:  name,
		Path:  "/" + name,
		year:  y,
	}
}

func (l *Layout) monthNode(y, m int) Node {
	name := fmt.Sprintf("%02d", m)
	return Node{
		Kind:  KindMonth,
		Range: rangeOf(dateUTC(y, m, 1), dateUTC(y, m+1, 1)),
		Name:  name,
		Path:  fmt.Sprintf("/%04d/%s", y, name),
		year:  y,
		month: m,
	}
}

func (l *Layout) dayNode(y, m, d int) Node {
	name := fmt.Sprintf("%02d", d)
	return Node{
		Kind:       KindDay,
		Range:      rangeOf(dateUTC(y, m, d), dateUTC(y, m, d+1)),
		Name:       name,
		Path:       fmt.Sprintf("/%04d/%02d/%s", y, m, name),
		year:       y,
		month:      m,
		dayOfMonth: d,
	}
}

func (l *Layout) bucketNode(dayNode Node, index int) Node {
	width := time.Duration(l.widthMinutes) * time.Minute
	start := dateUTC(dayNode.year, dayNode.month, dayNode.dayOfMonth).Add(time.Duration(index) * width)
	name := l.bucketName(index)
	return Node{
		Kind:       KindBucket,
		Range:      rangeOf(start, start.Add(width)),
		Name:       name,
		Path:       dayNode.Path + "/" + name,
		year:       dayNode.year,
		month:      dayNode.month,
		dayOfMonth: dayNode.dayOfMonth,
	}
}

func (l *Layout) bucketName(index int) string {
	minuteOfDay := index * l.widthMinutes
	return fmt.Sprintf("%02d-%02d", minuteOfDay/60, minuteOfDay%60)
}

func dateUTC(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// daysIn 은 해당 월의 일 수 (윤년 반영).
func daysIn(y, m int) int {
	return dateUTC(y, m+1, 0).Day()
}

// parseDigits 는 정확히 width 자리 10진수만 허용한다 (부호/공백 불가).
func parseDigits(s string, width int) (int, bool) {
	if len(s) != width {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
