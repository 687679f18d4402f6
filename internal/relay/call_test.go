package relay

import (
	"sync"
	"testing"

	"github.com/voxcanvas/voxcanvas/pkg/transcript"
)

func TestCall_SetStreamSID_FirstWins(t *testing.T) {
	t.Parallel()
	c := &Call{ID: "c1"}

	if !c.SetStreamSID("MZ1") {
		t.Fatal("first SetStreamSID should be recorded")
	}
	if c.SetStreamSID("MZ2") {
		t.Error("second SetStreamSID should be ignored")
	}
	if got := c.StreamSID(); got != "MZ1" {
		t.Errorf("StreamSID() = %q; want MZ1", got)
	}
}

func TestCall_AppendAfterFinalizeDropped(t *testing.T) {
	t.Parallel()
	c := &Call{ID: "c1"}

	c.Append(transcript.Entry{Speaker: transcript.SpeakerUser, Text: "before"})
	if !c.beginFinalize() {
		t.Fatal("beginFinalize should succeed on an active call")
	}
	c.Append(transcript.Entry{Speaker: transcript.SpeakerUser, Text: "during"})
	c.finishFinalize()
	c.Append(transcript.Entry{Speaker: transcript.SpeakerUser, Text: "after"})

	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() has %d entries; want 1", len(entries))
	}
	if entries[0].Text != "before" {
		t.Errorf("entry = %q; want before", entries[0].Text)
	}
}

func TestCall_BeginFinalizeOnlyOnce(t *testing.T) {
	t.Parallel()
	c := &Call{ID: "c1"}

	const racers = 8
	wins := make(chan struct{}, racers)
	var wg sync.WaitGroup
	for range racers {
		wg.Go(func() {
			if c.beginFinalize() {
				wins <- struct{}{}
			}
		})
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("%d goroutines won beginFinalize; want exactly 1", n)
	}
}

func TestCall_FinalizedTransitions(t *testing.T) {
	t.Parallel()
	c := &Call{ID: "c1"}

	if c.Finalized() {
		t.Error("new call should not be finalized")
	}
	c.beginFinalize()
	if !c.Finalized() {
		t.Error("finalizing call should report finalized")
	}
	c.finishFinalize()
	if !c.Finalized() {
		t.Error("finished call should report finalized")
	}
}

func TestCall_EntriesReturnsCopy(t *testing.T) {
	t.Parallel()
	c := &Call{ID: "c1"}
	c.Append(transcript.Entry{Speaker: transcript.SpeakerUser, Text: "original"})

	got := c.Entries()
	got[0].Text = "mutated"

	if c.Entries()[0].Text != "original" {
		t.Error("Entries() must return a copy, not the backing slice")
	}
}
