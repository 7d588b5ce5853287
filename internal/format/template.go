// internal/format/template.go
package format

import (
	"fmt"
	"strings"
	"time"

	"cwl-mount/internal/model"
)

// DefaultTemplate 는 --format 을 지정하지 않았을 때 쓰는 기본 라인 포맷.
const DefaultTemplate = "[$log_group_name] [$log_stream_name] $timestamp - $message"

// 타임스탬프 필드 렌더링 형식 (RFC 3339, UTC, 밀리초 고정).
// 예: 2014-07-08T09:10:10.789Z
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Field 는 템플릿에서 참조할 수 있는 이벤트 필드.
type Field uint8

const (
	FieldLogGroupName Field = iota
	FieldEventID
	FieldIngestionTime
	FieldLogStreamName
	FieldMessage
	FieldTimestamp
)

// fieldList 는 Field 값 순서의 템플릿 이름.
var fieldList = [...]string{
	FieldLogGroupName:  "log_group_name",
	FieldEventID:       "event_id",
	FieldIngestionTime: "ingestion_time",
	FieldLogStreamName: "log_stream_name",
	FieldMessage:       "message",
	FieldTimestamp:     "timestamp",
}

var fieldNames = func() map[string]Field {
	m := make(map[string]Field, len(fieldList))
	for i, name := range fieldList {
		m[name] = Field(i)
	}
	return m
}()

// String 은 템플릿에서 쓰는 필드 이름 (예: "log_stream_name").
func (f Field) String() string {
	if int(f) < len(fieldList) {
		return fieldList[f]
	}
	return fmt.Sprintf("Field(%d)", uint8(f))
}

// Fields 는 템플릿에서 쓸 수 있는 필드 이름 목록 (--help 출력용).
func Fields() []string {
	out := make([]string, 0, len(fieldList))
	for f := FieldLogGroupName; int(f) < len(fieldList); f++ {
		out = append(out, f.String())
	}
	return out
}

// SyntaxError 는 템플릿 컴파일 실패를 나타낸다.
// Offset 은 문제가 된 '$' 의 바이트 위치.
type SyntaxError struct {
	Template string
	Offset   int
	Msg      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("format template %q: offset %d: %s", e.Template, e.Offset, e.Msg)
}

type opKind uint8

const (
	opLiteral opKind = iota
	opField
)

type instruction struct {
	kind    opKind
	literal string
	field   Field
}

// Template
// ------------------------------------------------------------
// 컴파일된 라인 포맷. 프로세스 시작 시 한 번 Compile 되고
// 이후 모든 fetch goroutine 이 읽기 전용으로 공유한다.
//
// 문법:
//
//	$$        → '$'
//	$name     → 필드 치환 (name 은 [A-Za-z0-9_] 의 최장 연속 구간)
//	${name}   → 필드 치환 (바로 뒤에 식별자 문자가 올 때 사용)
//	그 외 '$' → 컴파일 에러
//
// 치환은 템플릿에 있는 '$' 만 해석하며, 필드 값(message 등)은 절대 다시 해석하지 않는다.
type Template struct {
	source string
	ops    []instruction
}

// Compile 은 템플릿 문자열을 instruction 목록으로 변환한다.
// 잘못된 '$' 시퀀스는 이 시점에서 *SyntaxError 로 거절된다 (fail-fast).
func Compile(src string) (*Template, error) {
	t := &Template{source: src}

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.ops = append(t.ops, instruction{kind: opLiteral, literal: lit.String()})
			lit.Reset()
		}
	}
	fail := func(off int, format string, args ...any) (*Template, error) {
		return nil, &SyntaxError{Template: src, Offset: off, Msg: fmt.Sprintf(format, args...)}
	}

	for i := 0; i < len(src); {
		c := src[i]
		if c != '$' {
			lit.WriteByte(c)
			i++
			continue
		}

		if i+1 >= len(src) {
			return fail(i, "dangling '$' at end of template, use '$$' for a literal dollar sign")
		}

		switch next := src[i+1]; {
		case next == '$':
			lit.WriteByte('$')
			i += 2

		case next == '{':
			end := strings.IndexByte(src[i+2:], '}')
			if end < 0 {
				return fail(i, "unterminated '${'")
			}
			name := src[i+2 : i+2+end]
			if name == "" {
				return fail(i, "empty field name in '${}'")
			}
			f, ok := fieldNames[name]
			if !ok {
				return fail(i, "unknown field %q, choose one of %s", name, knownFields())
			}
			flush()
			t.ops = append(t.ops, instruction{kind: opField, field: f})
			i += 2 + end + 1

		case isIdentChar(next):
			j := i + 1
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			name := src[i+1 : j]
			f, ok := fieldNames[name]
			if !ok {
				return fail(i, "unknown field %q, choose one of %s (use '${name}' when text follows a field)", name, knownFields())
			}
			flush()
			t.ops = append(t.ops, instruction{kind: opField, field: f})
			i = j

		default:
			return fail(i, "unexpected %q after '$', use '$$' for a literal dollar sign", next)
		}
	}
	flush()

	return t, nil
}

// MustCompile 은 Compile 실패 시 panic 한다. 상수 템플릿 전용.
func MustCompile(src string) *Template {
	t, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return t
}

// String 은 컴파일 전 원본 템플릿을 반환한다.
func (t *Template) String() string {
	return t.source
}

// Append 는 이벤트 하나를 렌더링해 dst 뒤에 붙인다. 개행은 붙이지 않는다.
// fetch 루프는 라인 버퍼를 재사용하기 위해 이 함수를 쓴다.
func (t *Template) Append(dst []byte, ev *model.Event) []byte {
	for _, op := range t.ops {
		if op.kind == opLiteral {
			dst = append(dst, op.literal...)
			continue
		}
		switch op.field {
		case FieldLogGroupName:
			dst = append(dst, ev.LogGroupName...)
		case FieldEventID:
			dst = append(dst, ev.EventID...)
		case FieldIngestionTime:
			dst = appendMillis(dst, ev.IngestionTime)
		case FieldLogStreamName:
			dst = append(dst, ev.LogStreamName...)
		case FieldMessage:
			dst = append(dst, ev.Message...)
		case FieldTimestamp:
			dst = appendMillis(dst, ev.Timestamp)
		}
	}
	return dst
}

// Format 은 이벤트 하나를 한 줄 문자열로 렌더링한다.
func (t *Template) Format(ev *model.Event) string {
	return string(t.Append(make([]byte, 0, 128), ev))
}

func appendMillis(dst []byte, ms int64) []byte {
	return time.UnixMilli(ms).UTC().AppendFormat(dst, timeLayout)
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func knownFields() string {
	return "'" + strings.Join(Fields(), "', '") + "'"
}
