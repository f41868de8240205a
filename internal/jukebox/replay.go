package jukebox

// DefaultReplayWindow is the number of recent picks that cannot be picked again.
const DefaultReplayWindow = 15

// ReplayWindow remembers the most recently picked track ids, oldest first.
// It is not safe for concurrent use; the Selector guards it.
type ReplayWindow struct {
	ids      []int64
	capacity int
}

// NewReplayWindow creates an empty window holding at most capacity ids.
// A capacity of zero or less disables replay protection.
func NewReplayWindow(capacity int) *ReplayWindow {
	if capacity < 0 {
		capacity = 0
	}
	return &ReplayWindow{
		ids:      make([]int64, 0, capacity),
		capacity: capacity,
	}
}

// Contains reports whether id is in the window.
func (w *ReplayWindow) Contains(id int64) bool {
	for _, v := range w.ids {
		if v == id {
			return true
		}
	}
	return false
}

// Record appends id, evicting the oldest entry when the window is full.
func (w *ReplayWindow) Record(id int64) {
	if w.capacity == 0 {
		return
	}
	if len(w.ids) == w.capacity {
		copy(w.ids, w.ids[1:])
		w.ids[len(w.ids)-1] = id
		return
	}
	w.ids = append(w.ids, id)
}

// Len returns the number of ids currently held.
func (w *ReplayWindow) Len() int { return len(w.ids) }

// Capacity returns the maximum number of ids held.
func (w *ReplayWindow) Capacity() int { return w.capacity }

// IDs returns a copy of the window contents, oldest first.
func (w *ReplayWindow) IDs() []int64 {
	out := make([]int64, len(w.ids))
	copy(out, w.ids)
	return out
}
