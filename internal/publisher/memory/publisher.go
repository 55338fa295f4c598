// Package memory keeps export completion events in process. It backs the
// "memory" events backend and lets tests inspect what workers announced.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

// DefaultRetention bounds how many events New keeps.
const DefaultRetention = 1024

// Record is one accepted completion event.
type Record struct {
	ID    string
	Topic string
	Event backend.CompletionEvent
	// Trace holds the propagated trace context of the publishing call.
	Trace map[string]string
}

// Publisher retains the most recent completion events.
type Publisher struct {
	mu        sync.RWMutex
	records   []Record
	seq       int
	retention int
}

var _ backend.Publisher = (*Publisher)(nil)

// New returns a Publisher keeping DefaultRetention events.
func New() *Publisher {
	return NewWithRetention(DefaultRetention)
}

// NewWithRetention keeps at most n events, dropping the oldest first. A
// non-positive n keeps everything.
func NewWithRetention(n int) *Publisher {
	return &Publisher{retention: n}
}

// Publish records a backend.CompletionEvent and returns its sequence ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	var event backend.CompletionEvent
	switch v := payload.(type) {
	case backend.CompletionEvent:
		event = v
	case *backend.CompletionEvent:
		if v == nil {
			return "", fmt.Errorf("nil completion event")
		}
		event = *v
	default:
		return "", fmt.Errorf("unsupported payload %T", payload)
	}
	if event.JobID == "" {
		return "", fmt.Errorf("completion event has no job id")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish canceled: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	rec := Record{
		ID:    fmt.Sprintf("%s/%d", topic, p.seq),
		Topic: topic,
		Event: event,
		Trace: telemetry.Inject(ctx),
	}
	p.records = append(p.records, rec)
	if p.retention > 0 && len(p.records) > p.retention {
		p.records = append(p.records[:0:0], p.records[len(p.records)-p.retention:]...)
	}
	return rec.ID, nil
}

// Events returns every retained record, oldest first.
func (p *Publisher) Events() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// ForJob returns the records announcing jobID, oldest first.
func (p *Publisher) ForJob(jobID string) []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Record
	for _, r := range p.records {
		if r.Event.JobID == jobID {
			out = append(out, r)
		}
	}
	return out
}

// Last returns the newest record for jobID.
func (p *Publisher) Last(jobID string) (Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := len(p.records) - 1; i >= 0; i-- {
		if p.records[i].Event.JobID == jobID {
			return p.records[i], true
		}
	}
	return Record{}, false
}

// CountByStatus tallies retained events by terminal status.
func (p *Publisher) CountByStatus() map[backend.JobStatus]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[backend.JobStatus]int)
	for _, r := range p.records {
		out[r.Event.Status]++
	}
	return out
}
