package workflow

// History keeps the undo and redo snapshot stacks. past runs from oldest to
// most recent; future runs from the next redo to the furthest one.
type History struct {
	past   []Workflow
	future []Workflow
}

// Record pushes a deep copy of the pre-commit state and drops every redo entry
func (h *History) Record(previous Workflow) {
	h.past = append(h.past, previous.Clone())
	h.future = nil
}

// Undo pops the most recent snapshot and parks a copy of current at the front
// of future. It reports false when there is nothing to undo.
func (h *History) Undo(current Workflow) (Workflow, bool) {
	if len(h.past) == 0 {
		return Workflow{}, false
	}

	last := len(h.past) - 1
	previous := h.past[last]
	h.past = h.past[:last]
	h.future = append([]Workflow{current.Clone()}, h.future...)

	return previous, true
}

// Redo pops the next snapshot from future and appends a copy of current to past.
// It reports false when there is nothing to redo.
func (h *History) Redo(current Workflow) (Workflow, bool) {
	if len(h.future) == 0 {
		return Workflow{}, false
	}

	next := h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, current.Clone())

	return next, true
}

func (h *History) CanUndo() bool { return len(h.past) > 0 }

func (h *History) CanRedo() bool { return len(h.future) > 0 }

// Depth returns the sizes of the undo and redo stacks
func (h *History) Depth() (past int, future int) {
	return len(h.past), len(h.future)
}
