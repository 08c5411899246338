package progress

import "fmt"

// Event is one recorded Reporter call.
type Event struct {
	Method string // "start", "update" or "end"
	Text   string // Start text, empty otherwise
	N      int64  // total for start, step/bytes otherwise
}

func (e Event) String() string {
	if e.Method == "start" {
		return fmt.Sprintf("start(%q, %d)", e.Text, e.N)
	}
	return fmt.Sprintf("%s(%d)", e.Method, e.N)
}

// Recorder keeps every call it receives. FailOn, when set, is consulted
// before recording and its error is returned to the caller.
type Recorder struct {
	Events []Event
	FailOn func(Event) error
}

func (r *Recorder) record(e Event) error {
	if r.FailOn != nil {
		if err := r.FailOn(e); err != nil {
			return err
		}
	}
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Start(text string, total int64) error {
	return r.record(Event{Method: "start", Text: text, N: total})
}

func (r *Recorder) Update(n int64) error {
	return r.record(Event{Method: "update", N: n})
}

func (r *Recorder) End(n int64) error {
	return r.record(Event{Method: "end", N: n})
}

// Starts returns the text of every recorded Start call, in order.
func (r *Recorder) Starts() []string {
	var out []string
	for _, e := range r.Events {
		if e.Method == "start" {
			out = append(out, e.Text)
		}
	}
	return out
}
