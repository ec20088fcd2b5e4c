package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNext(t *testing.T) {
	from := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	got, err := Next("@every 6h", from)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(from.Add(6 * time.Hour)) {
		t.Fatalf("got %s", got)
	}
	got, err = Next("30 7 * * *", from)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2025, 3, 2, 7, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	if _, err := Next("every now and then", from); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(context.Background())
	if err := s.Add("collect", "61 * * * *", func(context.Context) {}); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := s.NextRun("collect"); ok {
		t.Fatal("unknown job reported a next run")
	}
}

func TestGuardSkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	fire := guard(context.Background(), "collect", func(ctx context.Context) {
		runs.Add(1)
		close(started)
		<-release
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); fire() }()
	<-started
	fire() // previous pass still running
	close(release)
	wg.Wait()

	if n := runs.Load(); n != 1 {
		t.Fatalf("runs=%d want 1", n)
	}
}

func TestGuardSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	guard(ctx, "collect", func(context.Context) { ran = true })()
	if ran {
		t.Fatal("job ran after cancel")
	}
}

func TestSchedulerFires(t *testing.T) {
	s := New(context.Background())
	fired := make(chan struct{}, 1)
	if err := s.Add("collect", "@every 1s", func(context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer func() { <-s.Stop().Done() }()
	if _, ok := s.NextRun("collect"); !ok {
		t.Fatal("expected next run")
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
}
