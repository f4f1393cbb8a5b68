// Package testlog records log entries written through logx.Logger so tests
// can assert on what a component reported.
package testlog

import (
	"sync"

	"offer-dispatch/internal/logx"
)

// Entry is one recorded log call.
type Entry struct {
	Level  string
	Msg    string
	Fields []logx.Field
}

// Field returns the value of the named field and whether it was set.
func (e Entry) Field(key string) (any, bool) {
	for i := len(e.Fields) - 1; i >= 0; i-- {
		if e.Fields[i].Key == key {
			return e.Fields[i].Value, true
		}
	}
	return nil, false
}

// Recorder collects entries from every logger it hands out.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty Recorder.
func New() *Recorder { return &Recorder{} }

// Logger returns a logger writing into the recorder.
func (r *Recorder) Logger() logx.Logger {
	return bound{r: r}
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Messages returns the recorded entries at the given level.
func (r *Recorder) Messages(level string) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e.Msg)
		}
	}
	return out
}

// Find returns the first entry with msg.
func (r *Recorder) Find(msg string) (Entry, bool) {
	for _, e := range r.Entries() {
		if e.Msg == msg {
			return e, true
		}
	}
	return Entry{}, false
}

func (r *Recorder) add(level, msg string, fields []logx.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Fields: append([]logx.Field(nil), fields...)})
}

type bound struct {
	r    *Recorder
	base []logx.Field
}

func (b bound) log(level, msg string, f []logx.Field) {
	all := make([]logx.Field, 0, len(b.base)+len(f))
	all = append(all, b.base...)
	b.r.add(level, msg, append(all, f...))
}

func (b bound) Debug(msg string, f ...logx.Field) { b.log("debug", msg, f) }
func (b bound) Info(msg string, f ...logx.Field)  { b.log("info", msg, f) }
func (b bound) Warn(msg string, f ...logx.Field)  { b.log("warn", msg, f) }
func (b bound) Error(msg string, f ...logx.Field) { b.log("error", msg, f) }

func (b bound) With(f ...logx.Field) logx.Logger {
	base := make([]logx.Field, 0, len(b.base)+len(f))
	base = append(base, b.base...)
	return bound{r: b.r, base: append(base, f...)}
}

func (b bound) Sync() error { return nil }

var _ logx.Logger = bound{}
