package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransferMessage(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Bancolombia: Transferiste $20.000 desde tu cuenta 2651", true},
		{"ENVIASTE $5.000 a Nequi", true},
		{"Transferencia exitosa", true},
		{"Envío a 3104633357 realizado", true},
		{"envio a mamá", true},
		{"Transfer to savings", true},
		{"Money sent to John", true},
		{"Compraste $20.000 en RAPPI", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransferMessage(tt.text))
		})
	}
}

func TestIsTransferShaped_ExtractorCategory(t *testing.T) {
	assert.True(t, IsTransferShaped("pagué 20000", "transfer"))
	assert.True(t, IsTransferShaped("pagué 20000", "Transfer"))
	assert.False(t, IsTransferShaped("pagué 20000", "food"))
}

func TestDestinationToken(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"star prefix", "Transferiste $20.000 a la cuenta *3104633357", "3104633357"},
		{"cuenta without star", "Transferiste a la Cuenta 3104633357 hoy", "3104633357"},
		{"a followed by number", "Enviaste $50.000 a 3001234567", "3001234567"},
		{"al with star", "Envío AL *3009998877.", "3009998877"},
		{"eleven digits do not match", "Enviaste a 31046333571", ""},
		{"nine digits do not match", "Enviaste a 310463335", ""},
		{"none", "Transferencia exitosa", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DestinationToken(tt.text))
		})
	}
}

func TestOriginSuffix(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"desde tu cuenta", "Transferiste $20.000 desde tu cuenta 2651 a la cuenta *3104633357", "2651"},
		{"cuenta a la", "de tu cuenta 9876 a la cuenta *3104633357", "9876"},
		{"star then date", "Bancolombia: Enviaste desde *4321, el 12/05/2024", "4321"},
		{"none", "Enviaste a 3001234567", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OriginSuffix(tt.text))
		})
	}
}
