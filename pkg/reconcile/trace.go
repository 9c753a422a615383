package reconcile

import (
	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/envelope"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

func (r *Reconciler) mergeThought(d envelope.Delta) {
	in := d.AgentThought
	cur := r.rec.AgentThought
	n := 0
	if cur != nil {
		n = len(cur.Procedures)
	}
	if n == 0 || !cur.Procedures[n-1].Open() {
		r.rec.AgentThought = in.Clone()
		return
	}
	if in == nil {
		return
	}

	refreshThought(cur, in)

	m := len(in.Procedures)
	if m == 0 {
		return
	}
	src := in.Procedures[m-1]

	if r.continues(n, m) {
		last := &cur.Procedures[n-1]
		last.Title = src.Title
		last.Status = src.Status
		if src.Debugging != nil {
			if src.Debugging.Content != "" {
				mergeText(&last.Debugging.Content, src.Debugging.Content, d.Incremental)
			}
			if src.Debugging.DisplayContent != "" {
				mergeText(&last.Debugging.DisplayContent, src.Debugging.DisplayContent, d.Incremental)
			}
		}
		return
	}

	r.warnDropped("thought", n, m)
	cur.Procedures = append(cur.Procedures, src.Clone())
}

func (r *Reconciler) mergeTokenStat(d envelope.Delta) {
	in := d.TokenStat
	cur := r.rec.TokenStat
	n := 0
	if cur != nil {
		n = len(cur.Procedures)
	}
	if n == 0 || !cur.Procedures[n-1].Open() {
		r.rec.TokenStat = in.Clone()
		return
	}
	if in == nil {
		return
	}

	refreshTokenStat(cur, in)

	m := len(in.Procedures)
	if m == 0 {
		return
	}
	src := in.Procedures[m-1]

	if r.continues(n, m) {
		last := &cur.Procedures[n-1]
		last.Title = src.Title
		last.Status = src.Status
		last.Debugging = src.Debugging.Clone()
		return
	}

	r.warnDropped("token_stat", n, m)
	cur.Procedures = append(cur.Procedures, src.Clone())
}

// warnDropped logs steps lost when a delta grows the list by more than one.
// Only the newest step is kept.
func (r *Reconciler) warnDropped(kind string, current, incoming int) {
	if incoming-current <= 1 {
		return
	}
	r.logger.Warn("trace delta skipped steps",
		zap.String("type", kind),
		zap.String("record_id", r.rec.RecordID),
		zap.Int("known_steps", current),
		zap.Int("delta_steps", incoming),
		zap.Int("dropped", incoming-current-1),
	)
}

// refreshThought copies the scalar metadata of in onto cur. Procedures are
// left alone.
func refreshThought(cur, in *record.AgentThought) {
	procs := cur.Procedures
	*cur = *in
	cur.Procedures = procs
}

func refreshTokenStat(cur, in *record.TokenStat) {
	procs := cur.Procedures
	*cur = *in
	cur.Procedures = procs
}
