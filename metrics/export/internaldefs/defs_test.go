package internaldefs

import (
	"strings"
	"testing"
)

func TestCounterDefsUniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "gotoken_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %q", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate counter name %q", def.Name)
		}
		seen[def.Name] = true
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatal("bucket bounds and suffixes disagree")
	}
}
