package customer

const DefaultHistoryCap = 50

type TransitionRecord struct {
	From     State  `json:"from"`
	To       State  `json:"to"`
	Reason   string `json:"reason"`
	AtTick   uint64 `json:"at_tick"`
	Accepted bool   `json:"accepted"`
}

// History is a fixed-size ring of transition records; once full, each Add
// drops the oldest record.
type History struct {
	buf   []TransitionRecord
	start int
	n     int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &History{buf: make([]TransitionRecord, capacity)}
}

func (h *History) Add(r TransitionRecord) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = r
		h.n++
		return
	}
	h.buf[h.start] = r
	h.start = (h.start + 1) % len(h.buf)
}

func (h *History) Len() int { return h.n }
func (h *History) Cap() int { return len(h.buf) }

// Recent returns up to n of the newest records, oldest first.
func (h *History) Recent(n int) []TransitionRecord {
	if n <= 0 || h.n == 0 {
		return nil
	}
	if n > h.n {
		n = h.n
	}
	out := make([]TransitionRecord, n)
	first := h.n - n
	for i := 0; i < n; i++ {
		out[i] = h.buf[(h.start+first+i)%len(h.buf)]
	}
	return out
}

func (h *History) Clear() {
	h.start, h.n = 0, 0
}
