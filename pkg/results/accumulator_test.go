package results

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestRecord_EmptyDropped(t *testing.T) {
	acc := NewAccumulator()

	if acc.Record("none", nil) {
		t.Error("Record(nil) should report no write")
	}
	if acc.Record("empty", []string{}) {
		t.Error("Record(empty) should report no write")
	}
	if acc.Len() != 0 {
		t.Errorf("Len() = %d, want 0", acc.Len())
	}
	if _, ok := acc.Get("none"); ok {
		t.Error("title with zero ids must not appear")
	}
}

func TestRecord_StoresCopy(t *testing.T) {
	acc := NewAccumulator()
	ids := []string{"1", "2"}

	if !acc.Record("A", ids) {
		t.Fatal("Record should report a write")
	}
	ids[0] = "mutated"

	got, ok := acc.Get("A")
	if !ok || !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("Get(A) = %q, %v; want [1 2], true", got, ok)
	}

	got[1] = "mutated"
	again, _ := acc.Get("A")
	if again[1] != "2" {
		t.Error("Get must return a copy")
	}
}

func TestRecord_LastWriteWins(t *testing.T) {
	acc := NewAccumulator()
	acc.Record("dup", []string{"1"})
	acc.Record("other", []string{"9"})
	acc.Record("dup", []string{"2", "3"})

	got, _ := acc.Get("dup")
	if !reflect.DeepEqual(got, []string{"2", "3"}) {
		t.Errorf("Get(dup) = %q, want [2 3]", got)
	}

	entries := acc.Entries()
	want := []Entry{{Title: "dup", IDs: []string{"2", "3"}}, {Title: "other", IDs: []string{"9"}}}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("Entries() = %+v, want %+v", entries, want)
	}
}

func TestOrdered_FollowsInputOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.Record("C", []string{"3"})
	acc.Record("A", []string{"1"})
	acc.Record("extra", []string{"x"})

	got := acc.Ordered([]string{"A", "B", "A", "C"})
	want := []Entry{
		{Title: "A", IDs: []string{"1"}},
		{Title: "C", IDs: []string{"3"}},
		{Title: "extra", IDs: []string{"x"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Ordered() = %+v, want %+v", got, want)
	}
}

func TestAccumulator_ConcurrentDistinctTitles(t *testing.T) {
	const workers = 200
	acc := NewAccumulator()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc.Record(fmt.Sprintf("title-%d", i), []string{fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	if acc.Len() != workers {
		t.Fatalf("Len() = %d, want %d", acc.Len(), workers)
	}
	for i := 0; i < workers; i++ {
		ids, ok := acc.Get(fmt.Sprintf("title-%d", i))
		if !ok || len(ids) != 1 || ids[0] != fmt.Sprint(i) {
			t.Errorf("title-%d = %q, %v", i, ids, ok)
		}
	}
	if len(acc.Entries()) != workers {
		t.Errorf("len(Entries()) = %d, want %d", len(acc.Entries()), workers)
	}
}

func TestAccumulator_ConcurrentSameTitle(t *testing.T) {
	acc := NewAccumulator()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc.Record("same", []string{fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	if acc.Len() != 1 {
		t.Errorf("Len() = %d, want 1", acc.Len())
	}
	if len(acc.Entries()) != 1 {
		t.Errorf("len(Entries()) = %d, want 1", len(acc.Entries()))
	}
	if ids, _ := acc.Get("same"); len(ids) != 1 {
		t.Errorf("Get(same) = %q, want one id", ids)
	}
}
