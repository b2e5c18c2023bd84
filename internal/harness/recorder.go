package harness

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/steady/internal/journal"
	"github.com/roach88/steady/pkg/ownership"
	"github.com/roach88/steady/pkg/store"
)

// recorder is the engine journal of a scenario run. It keeps the trace in
// memory instead of writing it anywhere.
type recorder struct {
	mu     sync.Mutex
	clock  journal.Clock
	events []TraceEvent
}

func newRecorder(clock journal.Clock) *recorder {
	return &recorder{clock: clock}
}

// Record implements store.Journal.
func (r *recorder) Record(m store.Mutation) error {
	if m.Patch {
		return nil
	}

	ev := TraceEvent{Change: m.Change.String(), Ref: fmt.Sprintf("%s/%s", m.Kind, m.Name)}
	if m.Change != store.Delete {
		props, err := propsOf(m)
		if err != nil {
			return err
		}
		ev.Props = props
	}

	r.append(ev)
	return nil
}

// RecordOwn implements engine.Journal.
func (r *recorder) RecordOwn(edge ownership.Edge) error {
	r.append(TraceEvent{Change: ChangeOwn, Ref: edge.Owned.String(), Owner: edge.Owner.String()})
	return nil
}

// RecordDisown implements engine.Journal.
func (r *recorder) RecordDisown(edge ownership.Edge) error {
	r.append(TraceEvent{Change: ChangeDisown, Ref: edge.Owned.String(), Owner: edge.Owner.String()})
	return nil
}

func (r *recorder) append(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Seq = r.clock.Next()
	r.events = append(r.events, ev)
}

// trace returns a copy of the events so far.
func (r *recorder) trace() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent{}, r.events...)
}

func propsOf(m store.Mutation) (json.RawMessage, error) {
	data, err := json.Marshal(m.Manifest)
	if err != nil {
		return nil, fmt.Errorf("trace %s/%s: %w", m.Kind, m.Name, err)
	}
	var envelope struct {
		Props json.RawMessage `json:"props"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("trace %s/%s: %w", m.Kind, m.Name, err)
	}
	return envelope.Props, nil
}
