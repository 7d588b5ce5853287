package metrics

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestStringRendersEveryCounter(t *testing.T) {
	m := New()
	atomic.AddInt64(&m.CacheHitsTotal, 3)
	atomic.AddInt64(&m.RemoteCallsTotal, 7)

	out := m.String()
	for _, want := range []string{"cache_hits_total=3\n", "remote_calls_total=7\n", "fs_open_handles=0\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "\n"); got != 19 {
		t.Errorf("rendered %d lines, want 19", got)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				atomic.AddInt64(&m.FSReadsTotal, 1)
			}
		}()
	}
	wg.Wait()

	if !strings.Contains(m.String(), "fs_reads_total=5000\n") {
		t.Errorf("unexpected output:\n%s", m.String())
	}
}
