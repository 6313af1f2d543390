package rules

import (
	"testing"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/idgen"
	"github.com/stretchr/testify/assert"
)

func TestApplier_UntouchedFieldsSurvive(t *testing.T) {
	a := NewApplier(idgen.NewSequence("grp"))
	in := draft("Netflix", 100)
	in.CategoryID = "cat-old"
	in.Notes = "original"

	out := a.Apply(in, []domain.Action{domain.SetType{Type: domain.TypeIncome}})

	assert.Equal(t, domain.TypeIncome, out.Type)
	assert.Equal(t, "cat-old", out.CategoryID)
	assert.Equal(t, "original", out.Notes)
	assert.Equal(t, domain.TypeExpense, in.Type, "input must not be mutated")
}

func TestApplier_CategoryThreeState(t *testing.T) {
	a := NewApplier(idgen.NewSequence("grp"))
	in := draft("x", 1)
	in.CategoryID = "cat-old"

	assert.Equal(t, "cat-old", a.Apply(in, nil).CategoryID)
	assert.Equal(t, "", a.Apply(in, []domain.Action{domain.ClearCategory{}}).CategoryID)
	assert.Equal(t, "cat-new", a.Apply(in, []domain.Action{domain.SetCategory{CategoryID: "cat-new"}}).CategoryID)
}

func TestApplier_AddNoteTwiceKeepsBoth(t *testing.T) {
	a := NewApplier(idgen.NewSequence("grp"))
	d := a.Apply(draft("x", 1), []domain.Action{domain.AddNote{Note: "first"}})
	d = a.Apply(d, []domain.Action{domain.AddNote{Note: "second"}})

	assert.Equal(t, "first\nsecond", d.Notes)
}

func TestApplier_LinkToAccountStampsFreshGroup(t *testing.T) {
	a := NewApplier(idgen.NewSequence("grp"))
	link := []domain.Action{domain.LinkToAccount{AccountID: "A2"}}

	first := a.Apply(draft("x", 1), link)
	second := a.Apply(draft("x", 1), link)

	assert.Equal(t, domain.TypeTransfer, first.Type)
	assert.Equal(t, "A2", first.TransferToAccountID)
	assert.NotEmpty(t, first.TransferID)
	assert.NotEqual(t, first.TransferID, second.TransferID)
}

func TestApplier_SecondLinkWins(t *testing.T) {
	a := NewApplier(idgen.NewSequence("grp"))
	d := a.Apply(draft("x", 1), []domain.Action{
		domain.LinkToAccount{AccountID: "A2"},
		domain.LinkToAccount{AccountID: "A3"},
	})

	assert.Equal(t, "A3", d.TransferToAccountID)
	assert.Equal(t, "grp-2", d.TransferID)
}
