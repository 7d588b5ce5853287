package cwl

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, true},
		{"request timeout", &smithy.GenericAPIError{Code: "RequestTimeoutException"}, true},
		{"call deadline", fmt.Errorf("operation error: %w", context.DeadlineExceeded), true},
		{"not found", &smithy.GenericAPIError{Code: "ResourceNotFoundException"}, false},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, false},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(context.Background(), "FilterLogEvents", tt.err)

			var re *RemoteError
			if !errors.As(err, &re) {
				t.Fatalf("classify returned %T, want *RemoteError", err)
			}
			if re.Transient != tt.transient {
				t.Errorf("Transient = %v, want %v", re.Transient, tt.transient)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v", IsTransient(err), tt.transient)
			}
			if !errors.Is(err, tt.err) {
				t.Error("classified error does not wrap the original")
			}
		})
	}
}

func TestClassifyCanceledCallerIsNotRemote(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classify(ctx, "FilterLogEvents", &smithy.GenericAPIError{Code: "ThrottlingException"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	var re *RemoteError
	if errors.As(err, &re) {
		t.Error("caller cancellation reported as RemoteError")
	}
}

func TestConvertEvent(t *testing.T) {
	full := types.FilteredLogEvent{
		EventId:       aws.String("id-1"),
		IngestionTime: aws.Int64(2000),
		LogStreamName: aws.String("stream"),
		Message:       aws.String("hello\nworld"),
		Timestamp:     aws.Int64(1000),
	}

	ev, err := convertEvent("/group", &full)
	if err != nil {
		t.Fatalf("convertEvent: %v", err)
	}
	if ev.LogGroupName != "/group" || ev.EventID != "id-1" || ev.LogStreamName != "stream" ||
		ev.Message != "hello\nworld" || ev.Timestamp != 1000 || ev.IngestionTime != 2000 {
		t.Errorf("unexpected event %+v", ev)
	}

	missing := []func(*types.FilteredLogEvent){
		func(e *types.FilteredLogEvent) { e.EventId = nil },
		func(e *types.FilteredLogEvent) { e.IngestionTime = nil },
		func(e *types.FilteredLogEvent) { e.LogStreamName = nil },
		func(e *types.FilteredLogEvent) { e.Message = nil },
		func(e *types.FilteredLogEvent) { e.Timestamp = nil },
	}
	for i, drop := range missing {
		e := full
		drop(&e)
		if _, err := convertEvent("/group", &e); err == nil {
			t.Errorf("case %d: convertEvent accepted an incomplete event", i)
		}
	}
}

func TestFilterLogEventsEmptyRange(t *testing.T) {
	c := &AWSClient{limiter: newLimiter(0)}
	page, err := c.FilterLogEvents(context.Background(), "/group", 5000, 5000, "")
	if err != nil || len(page.Events) != 0 || page.NextToken != "" {
		t.Errorf("empty range = %+v, %v", page, err)
	}
}

func TestNewLimiter(t *testing.T) {
	if l := newLimiter(0); l.Limit() != rate.Inf {
		t.Errorf("tps 0 limit = %v, want Inf", l.Limit())
	}
	if l := newLimiter(5); l.Limit() != 5 || l.Burst() != 5 {
		t.Errorf("tps 5 = limit %v burst %d", l.Limit(), l.Burst())
	}
}

func TestValidLogGroupName(t *testing.T) {
	for _, name := range []string{"/aws/lambda/fn", "app.log", "a#b-c_d"} {
		if !ValidLogGroupName(name) {
			t.Errorf("%q should be valid", name)
		}
	}
	for _, name := range []string{"", "has space", "colon:bad", string(make([]byte, 513))} {
		if err := ValidateLogGroupName(name); err == nil {
			t.Errorf("%q should be invalid", name)
		}
	}
}
