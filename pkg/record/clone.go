package record

import "slices"

// Clone returns a deep copy of the record. Snapshots handed to callers are
// clones so that later merges never reach them.
func (r *Record) Clone() Record {
	if r == nil {
		return Record{}
	}

	out := *r
	out.OptionCards = slices.Clone(r.OptionCards)
	out.QuoteInfos = slices.Clone(r.QuoteInfos)
	out.References = slices.Clone(r.References)
	out.AgentThought = r.AgentThought.Clone()
	out.TokenStat = r.TokenStat.Clone()
	return out
}

// Clone returns a deep copy of the trace, or nil for a nil trace.
func (a *AgentThought) Clone() *AgentThought {
	if a == nil {
		return nil
	}

	out := *a
	if a.Procedures != nil {
		out.Procedures = make([]Procedure, len(a.Procedures))
		for i := range a.Procedures {
			out.Procedures[i] = a.Procedures[i].Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the step.
func (p Procedure) Clone() Procedure {
	p.Debugging = p.Debugging.Clone()
	return p
}

// Clone returns a copy of the debugging block, or nil for a nil block.
func (d *Debugging) Clone() *Debugging {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}

// Clone returns a deep copy of the usage accounting, or nil.
func (t *TokenStat) Clone() *TokenStat {
	if t == nil {
		return nil
	}

	out := *t
	if t.Procedures != nil {
		out.Procedures = make([]TokenStatProcedure, len(t.Procedures))
		for i := range t.Procedures {
			out.Procedures[i] = t.Procedures[i].Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the step.
func (p TokenStatProcedure) Clone() TokenStatProcedure {
	p.Debugging = p.Debugging.Clone()
	return p
}

// Clone returns a copy of the conversation, or nil.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
