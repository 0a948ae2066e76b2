package archive

import "github.com/kratepkg/krate/internal/events"

// ProgressEmitter publishes phase/current/total/message updates onto a
// progress bus as an archive operation proceeds. Grounded on the
// original implementation's KrateProgress/emit_progress pair; here the
// destination is an in-process Bus rather than a GUI window event.
type ProgressEmitter struct {
	bus   *events.Bus
	phase string
}

// NewProgressEmitter returns an emitter bound to bus for the named phase
// ("pack" or "unpack"). A nil bus makes every Emit call a no-op.
func NewProgressEmitter(bus *events.Bus, phase string) *ProgressEmitter {
	return &ProgressEmitter{bus: bus, phase: phase}
}

// Emit publishes a progress update under the emitter's bound phase. It
// never blocks the caller.
func (p *ProgressEmitter) Emit(current, total uint64, message string) {
	if p == nil {
		return
	}
	p.EmitPhase(p.phase, current, total, message)
}

// EmitPhase publishes a progress update under an explicit phase,
// overriding the emitter's bound phase for this one call — used for the
// one-off "scan" phase that precedes a pack's main "pack"-phase loop.
func (p *ProgressEmitter) EmitPhase(phase string, current, total uint64, message string) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(events.ProgressEvent{
		Phase:   phase,
		Current: current,
		Total:   total,
		Message: message,
	})
}
