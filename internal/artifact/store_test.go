package artifact

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_SharesConcurrentProduce(t *testing.T) {
	s := NewStore()
	var calls int32
	produce := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return "result", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := s.Get(context.Background(), "key", produce)
			if err != nil {
				t.Errorf("Get error: %v", err)
			}
			if val != "result" {
				t.Errorf("got %v, want %v", val, "result")
			}
		}()
	}

	wg.Wait()

	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestStore_InvalidateDuringProduceIsNotCached(t *testing.T) {
	s := NewStore()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	done := make(chan any, 1)
	go func() {
		v, _ := s.Get(context.Background(), "k", func(context.Context) (any, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				close(started)
				<-release
			}
			return n, nil
		})
		done <- v
	}()

	<-started
	s.Invalidate()
	close(release)
	if v := <-done; v != int32(1) {
		t.Fatalf("in-flight caller got %v, want 1", v)
	}

	v, err := s.Get(context.Background(), "k", func(context.Context) (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	})
	if err != nil || v != int32(2) {
		t.Fatalf("after Invalidate got %v, %v; want a fresh value 2", v, err)
	}
}

func TestStore_CachesSuccess(t *testing.T) {
	s := NewStore()
	var calls int32
	produce := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "injected", nil
	}

	for i := 0; i < 3; i++ {
		v, err := Typed(context.Background(), s, "injected:", produce)
		if err != nil || v != "injected" {
			t.Fatalf("Typed = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("producer called %d times, want 1", calls)
	}
	if hits, misses := s.Stats(); hits != 2 || misses != 1 {
		t.Fatalf("Stats = %d hits, %d misses", hits, misses)
	}
}

func TestStore_DoesNotCacheFailure(t *testing.T) {
	s := NewStore()
	var calls int32
	boom := errors.New("boom")
	produce := func(context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, boom
		}
		return 42, nil
	}

	if _, err := s.Get(context.Background(), "k", produce); !errors.Is(err, boom) {
		t.Fatalf("first Get err = %v", err)
	}
	v, err := s.Get(context.Background(), "k", produce)
	if err != nil || v != 42 {
		t.Fatalf("second Get = %v, %v", v, err)
	}
}

func TestStore_Invalidate(t *testing.T) {
	s := NewStore()
	var calls int32
	produce := func(context.Context) (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}
	_, _ = s.Get(context.Background(), "k", produce)
	s.Invalidate()
	v, _ := s.Get(context.Background(), "k", produce)
	if v != int32(2) {
		t.Fatalf("after Invalidate got %v, want 2", v)
	}
}

func TestTyped_WrongType(t *testing.T) {
	s := NewStore()
	_, _ = s.Get(context.Background(), "k", func(context.Context) (any, error) { return 1, nil })
	_, err := Typed(context.Background(), s, "k", func(context.Context) (string, error) { return "", nil })
	if err == nil || !strings.Contains(err.Error(), "cached int, want string") {
		t.Fatalf("expected type error, got %v", err)
	}
}

func TestKey(t *testing.T) {
	got := Key("injected", map[string]string{"style": "b.scss", "entry": "a.ts"})
	if got != "injected:entry=a.ts&style=b.scss" {
		t.Fatalf("Key = %q", got)
	}
}
