package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

func testQuery(key string) kcv.KeySliceQuery {
	return kcv.KeySliceQuery{
		Key:   kcv.Key(key),
		Slice: kcv.SliceQuery{Start: "a", End: "z", Limit: 10},
	}
}

func testEntries(vals ...string) kcv.EntryList {
	entries := make(kcv.EntryList, 0, len(vals))
	for i, v := range vals {
		entries = append(entries, kcv.Entry{Column: kcv.Key(fmt.Sprintf("col%02d", i)), Value: kcv.Key(v)})
	}
	return entries
}

func TestSliceStore_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newSliceStore(time.Second, 1<<20, 4, clock.Now)

	q := testQuery("k1")
	want := testEntries("v1", "v2")
	s.Put(q, want)

	got, ok := s.Get(q)
	if !ok {
		t.Fatal("expected hit right after put")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(999 * time.Millisecond)
	if _, ok := s.Get(q); !ok {
		t.Fatal("expected hit just before TTL")
	}

	clock.Advance(time.Millisecond)
	if _, ok := s.Get(q); ok {
		t.Fatal("expected miss once TTL elapsed")
	}
	if s.Len() != 0 {
		t.Fatalf("expected expired record to be dropped, Len() = %d", s.Len())
	}
	if s.Weight() != 0 {
		t.Fatalf("expected weight to return to zero, got %d", s.Weight())
	}
}

func TestSliceStore_WeightBudget(t *testing.T) {
	clock := newFakeClock()
	const budget = 2000
	s := newSliceStore(time.Hour, budget, 4, clock.Now)

	for i := 0; i < 50; i++ {
		q := testQuery(fmt.Sprintf("key-%03d", i))
		s.Put(q, testEntries("0123456789abcdef", "0123456789abcdef"))
		clock.Advance(time.Millisecond)
		if w := s.Weight(); w > budget {
			t.Fatalf("weight %d exceeds budget %d after insert %d", w, budget, i)
		}
	}
	if s.Len() == 0 {
		t.Fatal("eviction removed everything, expected some records to remain")
	}
	if s.Len() >= 50 {
		t.Fatalf("expected evictions, still holding %d records", s.Len())
	}

	// The newest insertion should have survived oldest-first eviction.
	if _, ok := s.Get(testQuery("key-049")); !ok {
		t.Fatal("expected newest record to survive eviction")
	}
}

func TestSliceStore_OverwriteAdjustsWeight(t *testing.T) {
	clock := newFakeClock()
	s := newSliceStore(time.Hour, 1<<20, 1, clock.Now)

	q := testQuery("k1")
	s.Put(q, testEntries("a much longer value than the replacement"))
	s.Put(q, testEntries("short"))

	want := recordWeight(q, testEntries("short"))
	if got := s.Weight(); got != want {
		t.Fatalf("Weight() = %d, want %d", got, want)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestSliceStore_GetOrLoad_SingleFlight(t *testing.T) {
	clock := newFakeClock()
	s := newSliceStore(time.Hour, 1<<20, 4, clock.Now)

	q := testQuery("hot")
	want := testEntries("v")
	var calls atomic.Int64

	const workers = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := s.GetOrLoad(q, func() (kcv.EntryList, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				return want, nil
			})
			if err != nil {
				errs <- err
				return
			}
			if diff := cmp.Diff(want, got); diff != "" {
				errs <- fmt.Errorf("entries mismatch:\n%s", diff)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader ran %d times, want 1", got)
	}
}

func TestSliceStore_GetOrLoad_ErrorPropagates(t *testing.T) {
	clock := newFakeClock()
	s := newSliceStore(time.Hour, 1<<20, 4, clock.Now)

	q := testQuery("broken")
	loadErr := errors.New("backend unavailable")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.GetOrLoad(q, func() (kcv.EntryList, error) {
				time.Sleep(5 * time.Millisecond)
				return nil, loadErr
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, loadErr) {
			t.Fatalf("waiter got %v, want %v", err, loadErr)
		}
	}

	if s.Len() != 0 {
		t.Fatalf("failed load must not store anything, Len() = %d", s.Len())
	}
	if _, ok := s.Get(q); ok {
		t.Fatal("expected miss after failed load")
	}
}

func TestSliceStore_KeysSkipsExpired(t *testing.T) {
	clock := newFakeClock()
	s := newSliceStore(time.Second, 1<<20, 4, clock.Now)

	s.Put(testQuery("old"), testEntries("v"))
	clock.Advance(600 * time.Millisecond)
	s.Put(testQuery("fresh"), testEntries("v"))
	clock.Advance(500 * time.Millisecond)

	keys := s.Keys()
	if len(keys) != 1 {
		t.Fatalf("Keys() returned %d entries, want 1", len(keys))
	}
	if keys[0].Key != "fresh" {
		t.Fatalf("Keys()[0].Key = %q, want %q", keys[0].Key, "fresh")
	}
	if s.Len() != 1 {
		t.Fatalf("expected expired record dropped during scan, Len() = %d", s.Len())
	}
}

func TestSliceStore_RemoveAll(t *testing.T) {
	clock := newFakeClock()
	s := newSliceStore(time.Hour, 1<<20, 4, clock.Now)

	for i := 0; i < 10; i++ {
		s.Put(testQuery(fmt.Sprintf("k%d", i)), testEntries("v"))
	}
	s.RemoveAll()
	if s.Len() != 0 || s.Weight() != 0 {
		t.Fatalf("after RemoveAll: Len() = %d, Weight() = %d, want 0, 0", s.Len(), s.Weight())
	}
}
