package assertion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCacheMemoizes(t *testing.T) {
	cache := NewCache()
	spec := TestSpecification{TargetURL: "https://example.com", Instructions: "check", ExpectedResult: "ok"}

	var calls atomic.Int32
	evaluate := func(ctx context.Context, spec TestSpecification) (Verdict, error) {
		calls.Add(1)
		return Verdict{Passed: true, Message: "TEST PASSED"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := cache.GetOrEvaluate(context.Background(), spec, evaluate)
		if err != nil {
			t.Fatalf("GetOrEvaluate: %v", err)
		}
		if !v.Passed {
			t.Error("verdict should be passed")
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("evaluate ran %d times, want 1", got)
	}
	if cache.Len() != 1 {
		t.Errorf("cache holds %d entries, want 1", cache.Len())
	}
}

func TestCacheSingleFlight(t *testing.T) {
	cache := NewCache()
	spec := TestSpecification{TargetURL: "https://example.com", Instructions: "check", ExpectedResult: "ok"}

	var calls atomic.Int32
	gate := make(chan struct{})
	evaluate := func(ctx context.Context, spec TestSpecification) (Verdict, error) {
		calls.Add(1)
		<-gate
		return Verdict{Passed: true}, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.GetOrEvaluate(context.Background(), spec, evaluate)
		}(i)
	}

	close(gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("evaluate ran %d times under contention, want 1", got)
	}
}

func TestCacheDistinctKeys(t *testing.T) {
	cache := NewCache()
	var calls atomic.Int32
	evaluate := func(ctx context.Context, spec TestSpecification) (Verdict, error) {
		calls.Add(1)
		return Verdict{Passed: true}, nil
	}

	specs := []TestSpecification{
		{TargetURL: "https://a.example.com", Instructions: "check", ExpectedResult: "ok"},
		{TargetURL: "https://b.example.com", Instructions: "check", ExpectedResult: "ok"},
	}
	for _, spec := range specs {
		if _, err := cache.GetOrEvaluate(context.Background(), spec, evaluate); err != nil {
			t.Fatal(err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("evaluate ran %d times for 2 distinct specs, want 2", got)
	}
}

func TestCacheErrorsNotCached(t *testing.T) {
	cache := NewCache()
	spec := TestSpecification{TargetURL: "https://example.com", Instructions: "check", ExpectedResult: "ok"}

	boom := errors.New("bridge unavailable")
	var calls atomic.Int32
	evaluate := func(ctx context.Context, spec TestSpecification) (Verdict, error) {
		if calls.Add(1) == 1 {
			return Verdict{}, boom
		}
		return Verdict{Passed: true}, nil
	}

	if _, err := cache.GetOrEvaluate(context.Background(), spec, evaluate); !errors.Is(err, boom) {
		t.Fatalf("first call error = %v, want %v", err, boom)
	}
	if cache.Len() != 0 {
		t.Fatal("errors must not populate the cache")
	}

	v, err := cache.GetOrEvaluate(context.Background(), spec, evaluate)
	if err != nil {
		t.Fatalf("retry after error: %v", err)
	}
	if !v.Passed {
		t.Error("retry should return the fresh verdict")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("evaluate ran %d times, want 2", got)
	}
}
