package livesession

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role tags who produced a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry is one line of the conversation log. Text stays mutable while the
// entry is not yet final; everything else is fixed at creation.
type Entry struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt time.Time

	final bool
}

// amendWindow bounds how stale the last entry may be and still get amended by
// a partial for the same role.
const amendWindow = 5 * time.Second

// mergeOrAppend applies one partial (or final) text update to the log and
// returns it. The last entry is amended in place when it has the same role,
// is not yet final, and was created within the recency window; otherwise a
// new entry is appended. Pure in the sense that all inputs are explicit: the
// caller provides the clock reading.
func mergeOrAppend(log []Entry, role Role, text string, isFinal bool, now time.Time) []Entry {
	if len(log) > 0 {
		last := &log[len(log)-1]
		if last.Role == role && !last.final && now.Sub(last.CreatedAt) < amendWindow {
			last.Text = text
			last.final = isFinal
			return log
		}
	}

	return append(log, Entry{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: now,
		final:     isFinal,
	})
}

// transcript reconciles partial transcription events into a stable
// conversation log. Two accumulators run independently, one per speaking
// side; a turn-complete signal flushes both so no partial bleeds into the
// next turn.
type transcript struct {
	mu sync.RWMutex

	entries []Entry

	inputAccumulator  strings.Builder
	outputAccumulator strings.Builder

	now func() time.Time

	onChanged func()
}

func newTranscript() *transcript {
	return &transcript{
		now:       time.Now,
		onChanged: func() {},
	}
}

func (t *transcript) SetChangedCallback(onChanged func()) {
	if t == nil || onChanged == nil {
		return
	}

	t.mu.Lock()
	t.onChanged = onChanged
	t.mu.Unlock()
}

// AppendInputPartial folds one user transcript fragment into the log.
func (t *transcript) AppendInputPartial(text string) {
	t.mu.Lock()
	t.inputAccumulator.WriteString(text)
	t.entries = mergeOrAppend(t.entries, RoleUser, t.inputAccumulator.String(), false, t.now())
	onChanged := t.onChanged
	t.mu.Unlock()
	onChanged()
}

// AppendOutputPartial folds one assistant transcript fragment into the log.
func (t *transcript) AppendOutputPartial(text string) {
	t.mu.Lock()
	t.outputAccumulator.WriteString(text)
	t.entries = mergeOrAppend(t.entries, RoleAssistant, t.outputAccumulator.String(), false, t.now())
	onChanged := t.onChanged
	t.mu.Unlock()
	onChanged()
}

// CompleteTurn finalizes both accumulators (when non-empty) and resets them.
func (t *transcript) CompleteTurn() {
	t.mu.Lock()
	if t.inputAccumulator.Len() > 0 {
		t.entries = mergeOrAppend(t.entries, RoleUser, t.inputAccumulator.String(), true, t.now())
		t.inputAccumulator.Reset()
	}
	if t.outputAccumulator.Len() > 0 {
		t.entries = mergeOrAppend(t.entries, RoleAssistant, t.outputAccumulator.String(), true, t.now())
		t.outputAccumulator.Reset()
	}
	onChanged := t.onChanged
	t.mu.Unlock()
	onChanged()
}

// AppendSystem records a system notice. System entries are never amended.
func (t *transcript) AppendSystem(text string) {
	t.mu.Lock()
	t.entries = append(t.entries, Entry{
		ID:        uuid.NewString(),
		Role:      RoleSystem,
		Text:      text,
		CreatedAt: t.now(),
		final:     true,
	})
	onChanged := t.onChanged
	t.mu.Unlock()
	onChanged()
}

// ResetAccumulators drops any in-flight partial text without touching the
// log. Used on teardown.
func (t *transcript) ResetAccumulators() {
	t.mu.Lock()
	t.inputAccumulator.Reset()
	t.outputAccumulator.Reset()
	t.mu.Unlock()
}

// Entries returns a point-in-time copy of the full log.
func (t *transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)
	return entries
}

// VisibleEntries filters the log for presentation: system notices and
// empty-text entries are excluded. The underlying log is left intact.
func (t *transcript) VisibleEntries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	visible := make([]Entry, 0, len(t.entries))
	for _, entry := range t.entries {
		if entry.Role == RoleSystem || strings.TrimSpace(entry.Text) == "" {
			continue
		}
		visible = append(visible, entry)
	}
	return visible
}

// Clear empties the log. The caller is expected to have offered the previous
// conversation to the history store first.
func (t *transcript) Clear() {
	t.mu.Lock()
	t.entries = nil
	t.inputAccumulator.Reset()
	t.outputAccumulator.Reset()
	onChanged := t.onChanged
	t.mu.Unlock()
	onChanged()
}
