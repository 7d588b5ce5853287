// internal/cwl/aws.go
package cwl

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cwl-mount/internal/config"
	"cwl-mount/internal/metrics"
	"cwl-mount/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DescribeLogGroups 한 페이지 최대 크기 (API 상한 50).
	logGroupPageLimit int32 = 50

	// FirstEventTime 이 첫 이벤트를 찾는 검색 창.
	firstEventSearchWindow = 5 * 365 * 24 * time.Hour
)

// fatal 로 고정하는 API 에러 코드.
// 이 코드들은 재시도해도 결과가 같으므로 바로 실패시킨다.
var fatalErrorCodes = map[string]bool{
	"ResourceNotFoundException":   true,
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"InvalidParameterException":   true,
	"ExpiredTokenException":       true,
}

// AWSClient
// ------------------------------------------------------------
// AWS SDK v2 CloudWatch Logs 기반 Client 구현.
//
//   - SDK 자체 retry 는 끈다 (aws.NopRetryer).
//     재시도 횟수는 오직 애플리케이션 레벨(worker 의 PageRetries)만 사용한다.
//     두 retry 가 겹치면 한 페이지의 지연을 예측할 수 없다.
//   - 모든 호출은 rate limiter(--tps) 를 통과한다.
//   - 호출 1회마다 PageTimeout 을 건다.
type AWSClient struct {
	cfg     config.Config
	metrics *metrics.Metrics
	client  *cloudwatchlogs.Client
	limiter *rate.Limiter
}

// NewAWSClient 는 AWS 기본 자격증명 체인과 리전 설정으로 client 를 만든다.
func NewAWSClient(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*AWSClient, error) {
	var opts []func(*awsCfgLib.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsCfgLib.WithRegion(cfg.AWSRegion))
	}

	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) {
		o.Retryer = aws.NopRetryer{}
	})

	return &AWSClient{
		cfg:     cfg,
		metrics: m,
		client:  client,
		limiter: newLimiter(cfg.TPS),
	}, nil
}

func newLimiter(tps int) *rate.Limiter {
	if tps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(tps), tps)
}

// DescribeLogGroup 은 이름이 정확히 일치하는 로그 그룹이 있는지 확인한다.
func (c *AWSClient) DescribeLogGroup(ctx context.Context, name string) (bool, error) {
	_, ok, err := c.LookupLogGroup(ctx, name)
	return ok, err
}

// LookupLogGroup 은 이름이 정확히 일치하는 로그 그룹의 메타데이터를 반환한다.
// DescribeLogGroups 는 prefix 검색이므로 모든 페이지를 보며 정확 일치를 찾는다.
func (c *AWSClient) LookupLogGroup(ctx context.Context, name string) (model.LogGroup, bool, error) {
	var found model.LogGroup
	var ok bool

	err := c.describeLogGroups(ctx, name, func(g types.LogGroup) bool {
		if aws.ToString(g.LogGroupName) == name {
			found, ok = toLogGroup(g), true
			return false
		}
		return true
	})
	if err != nil {
		return model.LogGroup{}, false, err
	}
	return found, ok, nil
}

// ListLogGroups 는 계정/리전의 모든 로그 그룹을 반환한다 (list-log-groups 명령).
func (c *AWSClient) ListLogGroups(ctx context.Context) ([]model.LogGroup, error) {
	var groups []model.LogGroup
	err := c.describeLogGroups(ctx, "", func(g types.LogGroup) bool {
		groups = append(groups, toLogGroup(g))
		return true
	})
	return groups, err
}

// describeLogGroups 는 페이지를 순회하며 fn 을 호출한다. fn 이 false 를 반환하면 멈춘다.
func (c *AWSClient) describeLogGroups(ctx context.Context, prefix string, fn func(types.LogGroup) bool) error {
	var nextToken *string
	for {
		in := &cloudwatchlogs.DescribeLogGroupsInput{
			Limit:     aws.Int32(logGroupPageLimit),
			NextToken: nextToken,
		}
		if prefix != "" {
			in.LogGroupNamePrefix = aws.String(prefix)
		}

		out, err := call(ctx, c, "DescribeLogGroups", func(ctx context.Context) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
			return c.client.DescribeLogGroups(ctx, in)
		})
		if err != nil {
			return err
		}

		for _, g := range out.LogGroups {
			if !fn(g) {
				return nil
			}
		}

		if out.NextToken == nil || len(out.LogGroups) == 0 {
			return nil
		}
		nextToken = out.NextToken
	}
}

// FilterLogEvents 는 [startMs, endMs) 구간의 이벤트 한 페이지를 가져온다.
//
// API 의 endTime 은 포함(inclusive) 이므로 endMs-1 을 보낸다.
// 이벤트 순서는 API 가 돌려준 순서 그대로 유지한다.
func (c *AWSClient) FilterLogEvents(ctx context.Context, logGroup string, startMs, endMs int64, nextToken string) (Page, error) {
	if endMs <= startMs {
		return Page{}, nil
	}

	in := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(logGroup),
		StartTime:    aws.Int64(startMs),
		EndTime:      aws.Int64(endMs - 1),
	}
	if c.cfg.PageSize > 0 {
		in.Limit = aws.Int32(c.cfg.PageSize)
	}
	if nextToken != "" {
		in.NextToken = aws.String(nextToken)
	}

	out, err := call(ctx, c, "FilterLogEvents", func(ctx context.Context) (*cloudwatchlogs.FilterLogEventsOutput, error) {
		return c.client.FilterLogEvents(ctx, in)
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Events:    make([]model.Event, 0, len(out.Events)),
		NextToken: aws.ToString(out.NextToken),
	}
	for i := range out.Events {
		ev, err := convertEvent(logGroup, &out.Events[i])
		if err != nil {
			return Page{}, &RemoteError{Op: "FilterLogEvents", Err: err}
		}
		page.Events = append(page.Events, ev)
	}

	return page, nil
}

// FirstEventTime 은 최근 5년 안에서 가장 이른 이벤트 시각을 찾는다.
// 이벤트가 하나도 없으면 ok=false.
func (c *AWSClient) FirstEventTime(ctx context.Context, logGroup string, now time.Time) (time.Time, bool, error) {
	start := now.Add(-firstEventSearchWindow).UnixMilli()
	end := now.UnixMilli()

	in := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(logGroup),
		StartTime:    aws.Int64(start),
		EndTime:      aws.Int64(end),
		Limit:        aws.Int32(1),
	}
	for {
		out, err := call(ctx, c, "FilterLogEvents", func(ctx context.Context) (*cloudwatchlogs.FilterLogEventsOutput, error) {
			return c.client.FilterLogEvents(ctx, in)
		})
		if err != nil {
			return time.Time{}, false, err
		}
		if len(out.Events) > 0 && out.Events[0].Timestamp != nil {
			return time.UnixMilli(*out.Events[0].Timestamp).UTC(), true, nil
		}
		// 빈 페이지에 token 만 오는 경우가 있다 (검색이 아직 진행 중).
		if out.NextToken == nil {
			return time.Time{}, false, nil
		}
		in.NextToken = out.NextToken
	}
}

// call 은 rate limit → 호출별 timeout → 에러 분류 → metrics 를 공통 처리한다.
// 재시도는 하지 않는다 (caller 책임).
func call[T any](ctx context.Context, c *AWSClient, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := c.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("cwl %s: rate limiter: %w", op, err)
	}

	callCtx := ctx
	if c.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.PageTimeout)
		defer cancel()
	}

	atomic.AddInt64(&c.metrics.RemoteCallsTotal, 1)
	out, err := fn(callCtx)
	if err != nil {
		atomic.AddInt64(&c.metrics.RemoteErrorsTotal, 1)
		err = classify(ctx, op, err)
		log.Debug().Err(err).Str("op", op).Msg("remote call failed")
		return zero, err
	}
	return out, nil
}

var defaultRetryables = retry.IsErrorRetryables(retry.DefaultRetryables)

// classify 는 SDK 에러를 RemoteError 로 감싼다.
//
//   - caller ctx 가 이미 끝났으면 원격 에러가 아니다 (shutdown 등) → ctx 에러 그대로
//   - 호출별 timeout → transient
//   - fatalErrorCodes → fatal
//   - SDK 기본 retryable 판정 (throttle, 5xx, connection) → transient
//   - 나머지 → fatal
func classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("cwl %s: %w", op, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RemoteError{Op: op, Transient: true, Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && fatalErrorCodes[apiErr.ErrorCode()] {
		return &RemoteError{Op: op, Transient: false, Err: err}
	}

	if defaultRetryables.IsErrorRetryable(err) == aws.TrueTernary {
		return &RemoteError{Op: op, Transient: true, Err: err}
	}
	return &RemoteError{Op: op, Transient: false, Err: err}
}

func toLogGroup(g types.LogGroup) model.LogGroup {
	lg := model.LogGroup{
		Name:        aws.ToString(g.LogGroupName),
		StoredBytes: aws.ToInt64(g.StoredBytes),
	}
	if g.CreationTime != nil {
		lg.CreationTime = time.UnixMilli(*g.CreationTime).UTC()
	}
	return lg
}

// convertEvent 는 SDK 이벤트를 model.Event 로 바꾼다.
// 필수 필드가 빠져 있으면 에러.
func convertEvent(logGroup string, e *types.FilteredLogEvent) (model.Event, error) {
	switch {
	case e.EventId == nil:
		return model.Event{}, errors.New("filtered log event: event_id missing")
	case e.IngestionTime == nil:
		return model.Event{}, errors.New("filtered log event: ingestion_time missing")
	case e.LogStreamName == nil:
		return model.Event{}, errors.New("filtered log event: log_stream_name missing")
	case e.Message == nil:
		return model.Event{}, errors.New("filtered log event: message missing")
	case e.Timestamp == nil:
		return model.Event{}, errors.New("filtered log event: timestamp missing")
	}

	return model.Event{
		LogGroupName:  logGroup,
		LogStreamName: *e.LogStreamName,
		EventID:       *e.EventId,
		IngestionTime: *e.IngestionTime,
		Timestamp:     *e.Timestamp,
		Message:       *e.Message,
	}, nil
}
