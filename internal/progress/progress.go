// Package progress defines the advisory status-callback capability a
// host passes into the orchestrator (spec.md §5: "Progress is reported
// via a scalar status callback ... invoked on the caller's thread ...
// advisory and must not throw back into the builder"). It intentionally
// carries no behavior of its own — a plain function type, threaded
// through explicitly rather than a package-level logger singleton (see
// spec.md Design Notes: "Global mutable status logger ... no
// process-wide singleton").
package progress

// Sink receives one status update per orchestrator state transition.
// stage names the state machine step (e.g. "ReadingExisting",
// "Emitting", "Writing"); detail is a short human-readable note. A
// nil Sink is valid everywhere a Sink is accepted; callers use NoOp to
// make that explicit.
type Sink func(stage, detail string)

// NoOp discards every update. Use it where a caller has no interest in
// progress reporting.
func NoOp(string, string) {}

// Emit calls sink if non-nil, so callers never need a nil check at
// every call site.
func Emit(sink Sink, stage, detail string) {
	if sink == nil {
		return
	}
	sink(stage, detail)
}
