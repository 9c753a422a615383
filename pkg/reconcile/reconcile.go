// Package reconcile rebuilds one assistant turn from the envelopes of its
// stream.
//
// A Reconciler owns exactly one record.Record. Every applied envelope merges
// into it and yields a deep-copied Snapshot, so callers may keep snapshots
// while later envelopes keep mutating the reconciler's state:
//
//	envelope ──> Apply ──> merge into Record ──> Snapshot (copy)
//
// A Reconciler is not safe for concurrent use. Envelopes of one turn must be
// applied in arrival order; independent turns use independent reconcilers.
package reconcile

import (
	"slices"

	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/envelope"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

// Outcome describes what an Apply call did.
type Outcome int

const (
	// OutcomeUpdated means the record changed.
	OutcomeUpdated Outcome = iota

	// OutcomeConversation means only the conversation metadata changed.
	OutcomeConversation

	// OutcomeIgnored means nothing changed, either because the envelope type
	// is unknown or because the turn has already terminated.
	OutcomeIgnored

	// OutcomeTerminated means an error envelope ended the turn.
	OutcomeTerminated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeConversation:
		return "conversation"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the turn at one point in time.
type Snapshot struct {
	Record       record.Record
	Conversation *record.Conversation

	// Sequence counts the envelopes that changed state so far.
	Sequence uint64
}

// Reconciler merges envelopes into a single record.
type Reconciler struct {
	rec        record.Record
	conv       *record.Conversation
	seq        uint64
	terminated bool

	continues ContinuationFunc
	logger    *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithContinuation replaces the step continuation test.
func WithContinuation(fn ContinuationFunc) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.continues = fn
		}
	}
}

// WithLogger sets the logger used for protocol anomalies.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Reconciler holding an empty record.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		continues: SameLength,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply merges env into the record and returns the resulting snapshot.
// Once an error envelope has been applied every later envelope is ignored.
func (r *Reconciler) Apply(env envelope.Envelope) (Snapshot, Outcome) {
	if r.terminated {
		return r.Snapshot(), OutcomeIgnored
	}

	switch e := env.(type) {
	case envelope.Reply:
		r.mergeReply(e.Delta)
	case envelope.Reference:
		r.rec.RecordID = e.RecordID
		r.rec.References = slices.Clone(e.References)
	case envelope.Thought:
		r.rec.RecordID = e.RecordID
		r.mergeThought(e.Delta)
	case envelope.TokenStat:
		r.rec.RecordID = e.RecordID
		r.mergeTokenStat(e.Delta)
	case envelope.Conversation:
		conv := e.Conversation
		r.conv = &conv
		r.seq++
		return r.Snapshot(), OutcomeConversation
	case envelope.Error:
		r.terminated = true
		return r.Snapshot(), OutcomeTerminated
	default:
		r.logger.Debug("ignoring envelope",
			zap.String("type", string(typeOf(env))),
		)
		return r.Snapshot(), OutcomeIgnored
	}

	r.seq++
	return r.Snapshot(), OutcomeUpdated
}

// Snapshot returns a deep copy of the current state.
func (r *Reconciler) Snapshot() Snapshot {
	return Snapshot{
		Record:       r.rec.Clone(),
		Conversation: r.conv.Clone(),
		Sequence:     r.seq,
	}
}

// Terminated reports whether an error envelope ended the turn.
func (r *Reconciler) Terminated() bool {
	return r.terminated
}

func (r *Reconciler) mergeReply(d envelope.Delta) {
	r.rec.RecordID = d.RecordID
	mergeText(&r.rec.Content, d.Content, d.Incremental)

	r.rec.OptionCards = slices.Clone(d.OptionCards)
	r.rec.QuoteInfos = slices.Clone(d.QuoteInfos)
	r.rec.CanRating = d.CanRating
	r.rec.IsFinal = d.IsFinal
	r.rec.Score = d.Score
	r.rec.RelatedRecordID = d.RelatedRecordID
	r.rec.FromAvatar = d.FromAvatar
	r.rec.FromName = d.FromName
	r.rec.IsFromSelf = d.IsFromSelf
}

// mergeText appends or replaces dst with src according to the incremental
// flag of the delta carrying src.
func mergeText(dst *string, src string, incremental bool) {
	if incremental {
		*dst += src
		return
	}
	*dst = src
}

func typeOf(env envelope.Envelope) envelope.Type {
	if env == nil {
		return ""
	}
	return env.Type()
}
