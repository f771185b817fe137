// Package history adds undo and redo on top of a composition.State.
//
// Only parameters are recorded: layer settings, filters and the active
// image id. Loading or removing images is never undone, because the decoded
// bitmaps behind them are released and cannot be brought back cheaply.
// Transient edits, such as the anchor updates of an in-progress drag, are
// not recorded until something commits.
package history

import (
	"log/slog"

	"watermarkstudio/pkg/composition"
)

// Entry is one committed snapshot.
type Entry struct {
	Label  string
	Params composition.Params
}

// Manager holds the undo and redo stacks for one State.
type Manager struct {
	state    *composition.State
	baseline composition.Params
	undo     []Entry
	redo     []Entry
	logger   *slog.Logger
}

// New starts a history whose baseline is the current parameters of state.
func New(state *composition.State, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{state: state, baseline: state.Params(), logger: logger}
}

// State returns the managed state.
func (m *Manager) State() *composition.State { return m.state }

// Commit records the current parameters and discards any redo branch.
func (m *Manager) Commit(label string) {
	m.undo = append(m.undo, Entry{Label: label, Params: m.state.Params()})
	m.redo = m.redo[:0]
	m.logger.Debug("history: commit", "label", label, "depth", len(m.undo))
}

// Undo reverts to the previous committed parameters. It reports false and
// changes nothing when there is nothing to undo.
func (m *Manager) Undo() bool {
	if len(m.undo) == 0 {
		return false
	}
	top := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, Entry{Label: top.Label, Params: m.state.Params()})

	target := m.baseline
	if n := len(m.undo); n > 0 {
		target = m.undo[n-1].Params
	}
	m.state.Restore(target)
	m.logger.Debug("history: undo", "label", top.Label, "depth", len(m.undo))
	return true
}

// Redo re-applies the most recently undone parameters. It reports false and
// changes nothing when there is nothing to redo.
func (m *Manager) Redo() bool {
	if len(m.redo) == 0 {
		return false
	}
	next := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, next)
	m.state.Restore(next.Params)
	m.logger.Debug("history: redo", "label", next.Label, "depth", len(m.undo))
	return true
}

// CanUndo reports whether Undo would change anything.
func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }

// CanRedo reports whether Redo would change anything.
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// UndoLabel names the edit Undo would revert.
func (m *Manager) UndoLabel() string {
	if len(m.undo) == 0 {
		return ""
	}
	return m.undo[len(m.undo)-1].Label
}

// RedoLabel names the edit Redo would re-apply.
func (m *Manager) RedoLabel() string {
	if len(m.redo) == 0 {
		return ""
	}
	return m.redo[len(m.redo)-1].Label
}

// Len returns the undo and redo depths.
func (m *Manager) Len() (undo, redo int) { return len(m.undo), len(m.redo) }

// Entries returns a copy of the undo stack, oldest first.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.undo))
	copy(out, m.undo)
	return out
}

// Clear drops both stacks and makes the current parameters the baseline.
func (m *Manager) Clear() {
	m.baseline = m.state.Params()
	m.undo = nil
	m.redo = nil
}
