package interview_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/voxcanvas/voxcanvas/internal/interview"
)

func TestStore_SnapshotIsolatedFromSet(t *testing.T) {
	t.Parallel()

	store := interview.NewStore(interview.Profile{Research: "commutes", Style: "indirect"})
	snap := store.Snapshot()

	store.Set(interview.Profile{Research: "remote work", Style: "direct"})

	if snap.Research != "commutes" {
		t.Errorf("snapshot Research = %q; want commutes", snap.Research)
	}
	if got := store.Snapshot().Research; got != "remote work" {
		t.Errorf("current Research = %q; want remote work", got)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := interview.NewStore(interview.Profile{})
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			if i%2 == 0 {
				store.Set(interview.Profile{Research: "r"})
			} else {
				_ = store.Snapshot()
			}
		})
	}
	wg.Wait()
}

func TestInstructions_EmbedsProfile(t *testing.T) {
	t.Parallel()

	got := interview.Instructions(interview.Profile{
		Research: "how freelancers handle invoicing",
		Style:    "indirect",
	})

	for _, want := range []string{
		"EmpathyInterviewerGPT",
		"how freelancers handle invoicing",
		"indirect",
		"SAY/DO",
		"PAINS",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
}

func TestInstructions_DiffersPerProfile(t *testing.T) {
	t.Parallel()

	a := interview.Instructions(interview.Profile{Research: "a", Style: "direct"})
	b := interview.Instructions(interview.Profile{Research: "b", Style: "direct"})
	if a == b {
		t.Error("instructions should change with the research topic")
	}
}
