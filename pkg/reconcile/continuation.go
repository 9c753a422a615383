package reconcile

// ContinuationFunc decides whether a trace delta continues the last known
// step. current is the number of steps the reconciler holds and incoming the
// number of steps listed by the delta.
//
// The wire protocol carries no step sequence id, so the comparison is a
// heuristic. It lives behind this type so that a protocol carrying explicit
// ids can swap it out.
type ContinuationFunc func(current, incoming int) bool

// SameLength treats a delta listing as many steps as already known as a
// continuation of the last step.
func SameLength(current, incoming int) bool {
	return current == incoming
}
