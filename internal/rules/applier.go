package rules

import (
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/idgen"
)

// Applier rewrites drafts according to rule actions.
type Applier struct {
	ids idgen.Generator
}

// NewApplier creates an Applier that stamps transfer groups with ids from gen.
func NewApplier(gen idgen.Generator) *Applier {
	return &Applier{ids: gen}
}

// Apply returns a copy of d with every action applied in order. Fields no
// action mentions are left as they were.
func (a *Applier) Apply(d domain.Draft, actions []domain.Action) domain.Draft {
	out := d.Clone()
	for _, act := range actions {
		switch act := act.(type) {
		case domain.SetType:
			out.Type = act.Type
		case domain.SetCategory:
			out.CategoryID = act.CategoryID
		case domain.ClearCategory:
			out.CategoryID = ""
		case domain.LinkToAccount:
			// Every link starts a new transfer group; when two rules link the
			// same draft the one applied last wins.
			out.Type = domain.TypeTransfer
			out.TransferToAccountID = act.AccountID
			out.TransferID = a.ids.NewID()
		case domain.AddNote:
			out.AppendNote(act.Note)
		}
	}
	return out
}
