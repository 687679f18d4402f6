// Package interview holds the process-wide interview configuration and
// renders the system instructions for the AI interviewer.
//
// The configuration may be replaced at any time through the administrative
// endpoint, but a call captures a [Profile] snapshot when it starts and
// keeps it for its whole lifetime. A change never retroactively affects a
// session that is already in progress.
package interview

import (
	"fmt"
	"sync"
)

// Profile is the interview context applied to new calls.
type Profile struct {
	// Research is the deep-research topic the interviewer explores.
	Research string `json:"research"`

	// Style selects the questioning approach (e.g. "indirect", "direct").
	Style string `json:"style"`
}

// Store holds the current [Profile]. Safe for concurrent use; readers take
// snapshots rather than observing live mutations.
type Store struct {
	mu      sync.RWMutex
	profile Profile
}

// NewStore creates a Store seeded with initial.
func NewStore(initial Profile) *Store {
	return &Store{profile: initial}
}

// Snapshot returns a copy of the current profile. Calls capture this once
// at session start.
func (s *Store) Snapshot() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Set replaces the current profile. Effective only for calls started after
// the update.
func (s *Store) Set(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// Instructions renders the interviewer system prompt for p. The research
// topic and questioning style are embedded verbatim so a profile change is
// directly observable in the generated instructions.
func Instructions(p Profile) string {
	return fmt.Sprintf(`You are EmpathyInterviewerGPT, a warm, curious interviewer whose sole goal
is to fill out an Empathy Canvas for the caller, in real time, by voice.
Start the conversation when the caller greets you, then guide the flow.

Deep-research context: %s (%s style).

Interview phases:
1. Warm-up. 2. Background and bio. 3. Adaptive canvas loop
(SAY/DO, THINK/FEEL, PAINS, GAINS). 4. Wrap-up.

Rules:
- One clear question at a time.
- Probe until each quadrant has at least three concrete items.
- Use %s, story-based prompts.
- Casual, empathetic tone; brief acknowledgements ("Got it").
- Track data internally; do not reveal the canvas mid-call.`,
		p.Research, p.Style, p.Style)
}
