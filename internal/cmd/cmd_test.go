package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"cwl-mount/internal/config"
	"cwl-mount/internal/model"
)

type fakeEpochSource struct {
	first time.Time
	ok    bool
	err   error
	calls int
}

func (f *fakeEpochSource) FirstEventTime(ctx context.Context, logGroup string, now time.Time) (time.Time, bool, error) {
	f.calls++
	return f.first, f.ok, f.err
}

func TestResolveEpoch(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	created := time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC)
	firstEvent := time.Date(2022, 2, 3, 4, 5, 6, 0, time.UTC)
	explicit := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		source    string
		group     model.LogGroup
		src       *fakeEpochSource
		want      time.Time
		wantCalls int
		wantErr   bool
	}{
		{"explicit", config.EpochExplicit, model.LogGroup{Name: "g", CreationTime: created}, &fakeEpochSource{}, explicit, 0, false},
		{"creation", config.EpochCreation, model.LogGroup{Name: "g", CreationTime: created}, &fakeEpochSource{}, created, 0, false},
		{"creation missing", config.EpochCreation, model.LogGroup{Name: "g"}, &fakeEpochSource{}, now, 0, false},
		{"first event", config.EpochFirstEvent, model.LogGroup{Name: "g", CreationTime: created}, &fakeEpochSource{first: firstEvent, ok: true}, firstEvent, 1, false},
		{"first event empty group", config.EpochFirstEvent, model.LogGroup{Name: "g", CreationTime: created}, &fakeEpochSource{}, created, 1, false},
		{"first event error", config.EpochFirstEvent, model.LogGroup{Name: "g"}, &fakeEpochSource{err: errors.New("denied")}, time.Time{}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Config{EpochSource: tt.source, Epoch: explicit}
			got, err := resolveEpoch(context.Background(), cfg, tt.src, tt.group, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("epoch = %s, want %s", got, tt.want)
			}
			if tt.src.calls != tt.wantCalls {
				t.Errorf("FirstEventTime calls = %d, want %d", tt.src.calls, tt.wantCalls)
			}
		})
	}
}

func TestWriteLogGroups(t *testing.T) {
	groups := []model.LogGroup{
		{Name: "/aws/lambda/a", CreationTime: time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC), StoredBytes: 10},
		{Name: "/aws/lambda/b"},
	}

	var text bytes.Buffer
	if err := writeLogGroups(&text, groups, "text"); err != nil {
		t.Fatal(err)
	}
	if text.String() != "/aws/lambda/a\n/aws/lambda/b\n" {
		t.Errorf("text = %q", text.String())
	}

	var js bytes.Buffer
	if err := writeLogGroups(&js, groups, "JSON"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"name": "/aws/lambda/a"`, `"stored_bytes": 10`, `"creation_time": "2021-01-02T00:00:00Z"`} {
		if !strings.Contains(js.String(), want) {
			t.Errorf("json output missing %s:\n%s", want, js.String())
		}
	}

	var empty bytes.Buffer
	if err := writeLogGroups(&empty, nil, "json"); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(empty.String()) != "[]" {
		t.Errorf("empty json = %q, want []", empty.String())
	}
}

// run 은 AWS 호출 전에 실패하는 경로만 실행한다.
func run(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return root.Execute()
}

func TestCommandsRegistered(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"mount", "list-log-groups"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %s not found: %v", name, err)
		}
	}
	for _, flag := range []string{"config", "region", "tps", "verbose", "log-level", "log-pretty"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestMountRequiresMountPoint(t *testing.T) {
	if err := run(t, "mount"); err == nil {
		t.Fatal("mount without args succeeded")
	}
}

func TestMountValidatesBeforeRemote(t *testing.T) {
	err := run(t, "mount", t.TempDir(), "--bucket-width", "7m")
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"--log-group-name is required", "--bucket-width 7m0s"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestMountReadsEnvironment(t *testing.T) {
	t.Setenv("CWL_MOUNT_LOG_GROUP_NAME", "bad name!")
	err := run(t, "mount", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "not a valid CloudWatch Logs log group name") {
		t.Errorf("err = %v, want log group name error", err)
	}
}

func TestMountRejectsBadTemplate(t *testing.T) {
	err := run(t, "mount", t.TempDir(), "-g", "/aws/app", "--format", "$nope")
	if err == nil || !strings.Contains(err.Error(), "--format") {
		t.Errorf("err = %v, want --format error", err)
	}
}

func TestMountRejectsBadEpoch(t *testing.T) {
	err := run(t, "mount", t.TempDir(), "-g", "/aws/app", "--epoch", "yesterday")
	if err == nil || !strings.Contains(err.Error(), "invalid --epoch") {
		t.Errorf("err = %v, want epoch error", err)
	}
}

func TestListLogGroupsRejectsBadOutput(t *testing.T) {
	err := run(t, "list-log-groups", "-o", "xml")
	if err == nil || !strings.Contains(err.Error(), "invalid --output") {
		t.Errorf("err = %v, want output error", err)
	}
}

func TestMissingExplicitConfigFile(t *testing.T) {
	err := run(t, "--config", "/nonexistent/cwl-mount.yaml", "list-log-groups")
	if err == nil || !strings.Contains(err.Error(), "reading config") {
		t.Errorf("err = %v, want config error", err)
	}
}

func TestUnmountRetriesOnNextSignalAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	defer close(done)

	calls := make(chan int, 4)
	n := 0
	unmount := func() error {
		n++
		calls <- n
		if n == 1 {
			return syscall.EBUSY
		}
		return nil
	}

	finished := make(chan struct{})
	go func() {
		unmountOnSignal(ctx, sigCh, done, unmount)
		close(finished)
	}()

	cancel()
	if got := <-calls; got != 1 {
		t.Fatalf("first unmount call = %d", got)
	}

	// 취소 후 실패해도 signal 을 계속 기다려야 한다.
	sigCh <- syscall.SIGTERM
	select {
	case got := <-calls:
		if got != 2 {
			t.Fatalf("second unmount call = %d", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("signal after failed unmount was ignored")
	}

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not return after successful unmount")
	}
}

func TestUnmountStopsWhenAlreadyUnmounted(t *testing.T) {
	done := make(chan struct{})
	close(done)

	called := false
	unmountOnSignal(context.Background(), make(chan os.Signal), done, func() error {
		called = true
		return nil
	})
	if called {
		t.Error("unmount called after filesystem was already unmounted")
	}
}
