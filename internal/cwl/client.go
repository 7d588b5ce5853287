// internal/cwl/client.go
package cwl

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"cwl-mount/internal/model"
)

// Page 는 FilterLogEvents 한 번의 응답.
// NextToken 이 "" 이면 마지막 페이지다.
type Page struct {
	Events    []model.Event
	NextToken string
}

// Client
// ------------------------------------------------------------
// 코어(fetch coordinator)가 소비하는 원격 로그 조회 인터페이스.
//
//   - DescribeLogGroup: 마운트 시점에 로그 그룹 존재 여부 확인 (fail-fast)
//   - FilterLogEvents:  [startMs, endMs) 반열린 구간의 이벤트 한 페이지
//
// 구현체는 AWSClient (운영) 와 cwltest.Fake (테스트).
type Client interface {
	DescribeLogGroup(ctx context.Context, name string) (bool, error)
	FilterLogEvents(ctx context.Context, logGroup string, startMs, endMs int64, nextToken string) (Page, error)
}

// RemoteError
// ------------------------------------------------------------
// 원격 호출 실패를 transient / fatal 로 분류해 감싼다.
//
//   - Transient: throttling, 5xx, 네트워크, 호출 timeout → 같은 페이지를 재시도
//   - Fatal:     로그 그룹 삭제, 권한 없음 등 → 즉시 실패 (다음 read 는 다시 시도)
type RemoteError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *RemoteError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("cwl %s (%s): %v", e.Op, kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsTransient 는 err 체인에 transient RemoteError 가 있으면 true.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient
}

// ErrLogGroupNotFound 는 마운트 대상 로그 그룹이 없을 때.
var ErrLogGroupNotFound = errors.New("log group does not exist")

// CloudWatch Logs 로그 그룹 이름 규칙: 1~512자, [A-Za-z0-9_/.#-].
// https://docs.aws.amazon.com/AmazonCloudWatchLogs/latest/APIReference/API_CreateLogGroup.html
var logGroupNameRe = regexp.MustCompile(`^[A-Za-z0-9_/.#-]{1,512}$`)

// ValidLogGroupName 은 이름이 CloudWatch Logs 규칙에 맞는지 검사한다.
func ValidLogGroupName(name string) bool {
	return logGroupNameRe.MatchString(name)
}

// ValidateLogGroupName 은 ValidLogGroupName 의 error 반환 버전.
func ValidateLogGroupName(name string) error {
	if !ValidLogGroupName(name) {
		return fmt.Errorf("%q is not a valid CloudWatch Logs log group name", name)
	}
	return nil
}

var _ Client = (*AWSClient)(nil)
