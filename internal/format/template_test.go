package format

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cwl-mount/internal/model"
)

func testEvent() *model.Event {
	return &model.Event{
		LogGroupName:  "/aws/logs/log-group",
		EventID:       "event-id",
		IngestionTime: time.Date(2014, 7, 8, 9, 10, 11, 123456789, time.UTC).UnixMilli(),
		LogStreamName: "log-stream-name",
		Message:       "message",
		Timestamp:     time.Date(2014, 7, 8, 9, 10, 10, 789101234, time.UTC).UnixMilli(),
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"braced", "[${log_stream_name}] ${message}", "[log-stream-name] message"},
		{"bare", "[$log_stream_name] $message", "[log-stream-name] message"},
		{"timestamp", "$timestamp - $message", "2014-07-08T09:10:10.789Z - message"},
		{"ingestion time", "$ingestion_time", "2014-07-08T09:10:11.123Z"},
		{"event id", "$event_id", "event-id"},
		{"escaped delimiter", "$$", "$"},
		{"escaped delimiter before field", "$$$message", "$message"},
		{"braced followed by identifier text", "${message}s", "messages"},
		{"literal only", "no fields here", "no fields here"},
		{"empty template", "", ""},
		{
			"default",
			DefaultTemplate,
			"[/aws/logs/log-group] [log-stream-name] 2014-07-08T09:10:10.789Z - message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Compile(tt.template)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.template, err)
			}
			if got := tmpl.Format(testEvent()); got != tt.expected {
				t.Errorf("Format = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		template string
		offset   int
	}{
		{"$", 0},
		{"abc $", 4},
		{"$nope", 0},
		{"$messages", 0},
		{"${message", 0},
		{"${}", 0},
		{"${nope}", 0},
		{"x $-", 2},
		{"$ message", 0},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			_, err := Compile(tt.template)
			if err == nil {
				t.Fatalf("Compile(%q) succeeded, want error", tt.template)
			}
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("error type = %T, want *SyntaxError", err)
			}
			if syntaxErr.Offset != tt.offset {
				t.Errorf("offset = %d, want %d", syntaxErr.Offset, tt.offset)
			}
		})
	}
}

func TestMessageIsNeverInterpreted(t *testing.T) {
	tmpl := MustCompile("$message")

	for _, message := range []string{"a$b", "$$", "${timestamp}", "$message", "trailing $"} {
		ev := testEvent()
		ev.Message = message
		if got := tmpl.Format(ev); got != message {
			t.Errorf("Format(%q) = %q, want message unchanged", message, got)
		}
	}
}

func TestMessageWithNewlines(t *testing.T) {
	tmpl := MustCompile("[$log_stream_name] $message")

	ev := testEvent()
	ev.Message = "line one\nline two\n"
	want := "[log-stream-name] line one\nline two\n"
	if got := tmpl.Format(ev); got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestAppendReusesBuffer(t *testing.T) {
	tmpl := MustCompile("$event_id:$message")

	buf := make([]byte, 0, 64)
	buf = tmpl.Append(buf, testEvent())
	buf = append(buf, '\n')
	buf = tmpl.Append(buf, testEvent())

	if got, want := string(buf), "event-id:message\nevent-id:message"; got != want {
		t.Errorf("Append = %q, want %q", got, want)
	}
}

func TestErrorMentionsKnownFields(t *testing.T) {
	_, err := Compile("$mesage")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range Fields() {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention field %q", err, name)
		}
	}
}

func TestTemplateString(t *testing.T) {
	if got := MustCompile(DefaultTemplate).String(); got != DefaultTemplate {
		t.Errorf("String = %q, want %q", got, DefaultTemplate)
	}
}

func TestFieldNames(t *testing.T) {
	tests := []struct {
		field Field
		want  string
	}{
		{FieldLogGroupName, "log_group_name"},
		{FieldEventID, "event_id"},
		{FieldIngestionTime, "ingestion_time"},
		{FieldLogStreamName, "log_stream_name"},
		{FieldMessage, "message"},
		{FieldTimestamp, "timestamp"},
		{Field(99), "Field(99)"},
	}
	for _, tt := range tests {
		if got := tt.field.String(); got != tt.want {
			t.Errorf("Field(%d).String() = %q, want %q", uint8(tt.field), got, tt.want)
		}
	}

	names := Fields()
	if len(names) != 6 || names[0] != "log_group_name" || names[5] != "timestamp" {
		t.Errorf("Fields() = %v", names)
	}
	for _, name := range names {
		if _, err := Compile("${" + name + "}"); err != nil {
			t.Errorf("listed field %q does not compile: %v", name, err)
		}
	}
}
