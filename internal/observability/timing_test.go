package observability

import (
	"testing"
	"time"
)

func TestTimings_RecordAccumulates(t *testing.T) {
	timings := Timings{}

	start := time.Now().Add(-1500 * time.Millisecond)
	timings.Record("vql_execution_time", start)
	timings.Record("vql_execution_time", time.Now().Add(-500*time.Millisecond))

	got := timings.Get("vql_execution_time")
	if got < 1.9 || got > 2.2 {
		t.Fatalf("accumulated bucket = %v, want ~2.0", got)
	}
}

func TestTimings_TotalAndMerge(t *testing.T) {
	a := Timings{"llm_time": 1.5, "vector_store_search_time": 0.25}
	b := Timings{"llm_time": 0.5}

	a.Merge(b)

	if a.Get("llm_time") != 2.0 {
		t.Fatalf("merged llm_time = %v, want 2.0", a.Get("llm_time"))
	}
	if a.Total() != 2.25 {
		t.Fatalf("total = %v, want 2.25", a.Total())
	}
	if a.Get("missing") != 0 {
		t.Fatalf("missing bucket should read 0")
	}
}
