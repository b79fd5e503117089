package indexmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMappingBijection(t *testing.T) {
	m := Build("video-1", 10, []int{4, 5}, []int{7})

	if got := m.ProcessedCount(); got != 8 {
		t.Fatalf("ProcessedCount() = %d, want 8", got)
	}

	// Every non-removed original index round-trips.
	for original := 0; original < 10; original++ {
		processed, ok := m.ToProcessed(original)
		if original == 4 || original == 5 {
			if ok {
				t.Errorf("ToProcessed(%d) = %d, want absent for removed frame", original, processed)
			}
			continue
		}
		if !ok {
			t.Fatalf("ToProcessed(%d) absent for kept frame", original)
		}
		back, ok := m.ToOriginal(processed)
		if !ok || back != original {
			t.Errorf("ToOriginal(ToProcessed(%d)) = %d, want %d", original, back, original)
		}
	}

	// Processed indices form the dense range 0..7.
	for processed := 0; processed < 8; processed++ {
		if _, ok := m.ToOriginal(processed); !ok {
			t.Errorf("ToOriginal(%d) absent inside the dense range", processed)
		}
	}
	if _, ok := m.ToOriginal(8); ok {
		t.Error("ToOriginal(8) should be absent past the dense range")
	}
}

func TestMappingDenseOrderPreserving(t *testing.T) {
	m := Build("video-2", 6, []int{0, 3}, nil)

	wantPairs := map[int]int{1: 0, 2: 1, 4: 2, 5: 3}
	for original, want := range wantPairs {
		got, ok := m.ToProcessed(original)
		if !ok || got != want {
			t.Errorf("ToProcessed(%d) = %d,%v, want %d", original, got, ok, want)
		}
	}
}

func TestRemovedLookupIsAbsentNotError(t *testing.T) {
	m := Build("video-3", 3, []int{1}, nil)
	if _, ok := m.ToProcessed(1); ok {
		t.Error("removed index should answer absent")
	}
	if _, ok := m.ToProcessed(-1); ok {
		t.Error("negative index should answer absent")
	}
	if _, ok := m.ToProcessed(99); ok {
		t.Error("out-of-range index should answer absent")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	m := Build("video-4", 12, []int{2, 3, 9}, []int{6})

	restored, err := Deserialize(m.Serialize())
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	for original := -1; original <= 12; original++ {
		gotP, gotOK := restored.ToProcessed(original)
		wantP, wantOK := m.ToProcessed(original)
		if gotP != wantP || gotOK != wantOK {
			t.Errorf("ToProcessed(%d) = %d,%v after round-trip, want %d,%v", original, gotP, gotOK, wantP, wantOK)
		}
	}
	for processed := -1; processed <= 12; processed++ {
		gotO, gotOK := restored.ToOriginal(processed)
		wantO, wantOK := m.ToOriginal(processed)
		if gotO != wantO || gotOK != wantOK {
			t.Errorf("ToOriginal(%d) = %d,%v after round-trip, want %d,%v", processed, gotO, gotOK, wantO, wantOK)
		}
	}

	if diff := cmp.Diff(m.Serialize(), restored.Serialize()); diff != "" {
		t.Errorf("persisted form changed across round-trip (-want +got):\n%s", diff)
	}
}

func TestDeserializeRejectsNonInverse(t *testing.T) {
	p := Build("video-5", 4, nil, nil).Serialize()
	p.ProcessedToOriginal[0] = [2]int{0, 3} // break the inverse

	if _, err := Deserialize(p); err == nil {
		t.Fatal("expected error for non-inverse mapping")
	}
}

func TestSerializedListsAreOrdered(t *testing.T) {
	p := Build("video-6", 8, []int{6, 1}, []int{5, 2}).Serialize()

	for i := 1; i < len(p.OriginalToProcessed); i++ {
		if p.OriginalToProcessed[i][0] <= p.OriginalToProcessed[i-1][0] {
			t.Fatal("originalToProcessed not ordered by original index")
		}
	}
	if p.RemovedFrames[0] != 1 || p.RemovedFrames[1] != 6 {
		t.Errorf("RemovedFrames = %v, want sorted [1 6]", p.RemovedFrames)
	}
	if p.InterpolatedFrames[0] != 2 || p.InterpolatedFrames[1] != 5 {
		t.Errorf("InterpolatedFrames = %v, want sorted [2 5]", p.InterpolatedFrames)
	}
	if p.Metadata.ProcessedFrameCount != 6 {
		t.Errorf("ProcessedFrameCount = %d, want 6", p.Metadata.ProcessedFrameCount)
	}
}
