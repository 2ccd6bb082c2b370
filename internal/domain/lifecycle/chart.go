package lifecycle

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"
)

const chartID = "lifecycle"

// Chart events. Each targets exactly one status.
const (
	EventPublish    statekit.EventType = "PUBLISH"
	EventDeactivate statekit.EventType = "DEACTIVATE"
	EventArchive    statekit.EventType = "ARCHIVE"
)

// ChartContext is carried through the interpreter; it only names the entity
// being stepped so transition payloads stay readable in traces.
type ChartContext struct {
	Entity string
}

// Chart is the lifecycle as a statechart. The machine config is immutable and
// shared; every Step runs on a fresh interpreter.
type Chart struct {
	machine *statekit.MachineConfig[*ChartContext]
}

// NewChart builds the chart that mirrors the base transition table.
func NewChart() (*Chart, error) {
	m, err := statekit.NewMachine[*ChartContext](chartID).
		WithInitial(statekit.StateID(StatusDraft)).
		WithContext(&ChartContext{}).
		State(statekit.StateID(StatusDraft)).
		On(EventPublish).Target(statekit.StateID(StatusPublished)).
		Done().
		State(statekit.StateID(StatusPublished)).
		On(EventDeactivate).Target(statekit.StateID(StatusInactive)).
		On(EventArchive).Target(statekit.StateID(StatusArchived)).
		Done().
		State(statekit.StateID(StatusInactive)).
		On(EventPublish).Target(statekit.StateID(StatusPublished)).
		Done().
		State(statekit.StateID(StatusArchived)).
		On(EventPublish).Target(statekit.StateID(StatusPublished)).
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build lifecycle chart: %w", err)
	}
	return &Chart{machine: m}, nil
}

// EventFor returns the chart event that moves an entity into to.
func EventFor(to Status) (statekit.EventType, bool) {
	switch to {
	case StatusPublished:
		return EventPublish, true
	case StatusInactive:
		return EventDeactivate, true
	case StatusArchived:
		return EventArchive, true
	}
	return "", false
}

// Step runs from→to through the chart and returns the resulting status.
// Edges outside the base transition table are rejected before the
// interpreter sees them.
func (c *Chart) Step(entity string, from, to Status) (Status, error) {
	if d := ValidateTransition(from, to, entity); !d.Allowed {
		return from, fmt.Errorf("%s", d.Reason)
	}
	evt, ok := EventFor(to)
	if !ok {
		return from, fmt.Errorf("no event leads to %s", to)
	}

	cctx := &ChartContext{Entity: entity}
	interp := statekit.NewInterpreter(c.machine)
	interp.UpdateContext(func(p **ChartContext) { *p = cctx })
	interp.Start()
	defer interp.Stop()

	if from != StatusDraft {
		snap := statekit.Snapshot[*ChartContext]{
			MachineID:    chartID,
			CurrentState: statekit.StateID(from),
			Context:      cctx,
			CreatedAt:    time.Now(),
		}
		if err := interp.Restore(snap); err != nil {
			return from, fmt.Errorf("restore chart at %s: %w", from, err)
		}
	}

	interp.Send(statekit.Event{Type: evt, Payload: cctx})
	got := Status(interp.State().Value)
	if got != to {
		return from, fmt.Errorf("chart left %s in %s, expected %s", entity, got, to)
	}
	return got, nil
}
