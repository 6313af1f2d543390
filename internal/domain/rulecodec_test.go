package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConditions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Condition
		wantErr bool
	}{
		{name: "empty document", raw: ``, want: nil},
		{name: "null document", raw: `null`, want: nil},
		{name: "empty object", raw: `{}`, want: nil},
		{
			name: "all supported keys in fixed order",
			raw:  `{"source":["telegram"],"from_account":"A1","amount_equals":5000,"amount_between":[100,200.5],"description_regex":"^uber","description_contains":["rappi","didi"]}`,
			want: []Condition{
				DescriptionContains{Keywords: []string{"rappi", "didi"}},
				DescriptionRegex{Pattern: "^uber"},
				AmountBetween{Min: decimal.NewFromInt(100), Max: decimal.RequireFromString("200.5")},
				AmountEquals{Value: decimal.NewFromInt(5000)},
				FromAccount{AccountID: "A1"},
				SourceIn{Sources: []string{"telegram"}},
			},
		},
		{name: "unknown keys ignored", raw: `{"to_account":"A2","category":"food"}`, want: nil},
		{name: "empty keyword list treated as absent", raw: `{"description_contains":[]}`, want: nil},
		{name: "amount_between wrong arity", raw: `{"amount_between":[1]}`, wantErr: true},
		{name: "amount_between inverted", raw: `{"amount_between":[10,1]}`, wantErr: true},
		{name: "malformed json", raw: `{"description_regex":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConditions([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].conditionKey(), got[i].conditionKey())
			}
		})
	}
}

func TestDecodeActions_CategoryIsThreeState(t *testing.T) {
	absent, err := DecodeActions([]byte(`{"add_note":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, []Action{AddNote{Note: "hi"}}, absent)

	cleared, err := DecodeActions([]byte(`{"set_category":null}`))
	require.NoError(t, err)
	assert.Equal(t, []Action{ClearCategory{}}, cleared)

	clearedByEmpty, err := DecodeActions([]byte(`{"set_category":""}`))
	require.NoError(t, err)
	assert.Equal(t, []Action{ClearCategory{}}, clearedByEmpty)

	set, err := DecodeActions([]byte(`{"set_category":"cat-food"}`))
	require.NoError(t, err)
	assert.Equal(t, []Action{SetCategory{CategoryID: "cat-food"}}, set)
}

func TestDecodeActions_FixedOrder(t *testing.T) {
	got, err := DecodeActions([]byte(`{"add_note":"n","link_to_account":"A2","set_category":"c","set_type":"transfer","auto_reconcile":true}`))
	require.NoError(t, err)
	assert.Equal(t, []Action{
		SetType{Type: TypeTransfer},
		SetCategory{CategoryID: "c"},
		LinkToAccount{AccountID: "A2"},
		AddNote{Note: "n"},
	}, got)
}

func TestDecodeActions_RejectsUnknownType(t *testing.T) {
	_, err := DecodeActions([]byte(`{"set_type":"refund"}`))
	assert.Error(t, err)
}

func TestEncodeActions_PreservesClear(t *testing.T) {
	raw, err := EncodeActions([]Action{ClearCategory{}, AddNote{Note: "x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"set_category":null,"add_note":"x"}`, string(raw))

	back, err := DecodeActions(raw)
	require.NoError(t, err)
	assert.Equal(t, []Action{ClearCategory{}, AddNote{Note: "x"}}, back)
}

func TestEncodeConditions_ReadableByDecode(t *testing.T) {
	conds := []Condition{
		DescriptionContains{Keywords: []string{"netflix"}},
		AmountBetween{Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(2)},
	}
	raw, err := EncodeConditions(conds)
	require.NoError(t, err)

	back, err := DecodeConditions(raw)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, conds[0], back[0])
	between := back[1].(AmountBetween)
	assert.True(t, between.Min.Equal(decimal.NewFromInt(1)))
	assert.True(t, between.Max.Equal(decimal.NewFromInt(2)))
}
