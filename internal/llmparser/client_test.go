package llmparser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycopier/signalcopier/internal/domain"
)

func TestCleanJSONResponseStripsCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSONResponse("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONResponse("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONResponse(`{"a":1}`))
}

func TestDecodeOutcomeRejection(t *testing.T) {
	outcome, err := decodeOutcome(`{"is_signal": false, "rejection_reason": "not a signal"}`)
	require.NoError(t, err)
	assert.False(t, outcome.IsSignal)
	assert.Equal(t, "not a signal", outcome.RejectionReason)
}

func TestDecodeOutcomeOpenSignal(t *testing.T) {
	raw := `{
		"is_signal": true,
		"signal_type": "OPEN",
		"direction": "BUY",
		"original_direction": "BUY",
		"symbol": "XAUUSD",
		"entry_price": "1950.5",
		"stop_loss": "1945.0",
		"take_profits": ["1955.0", "1960.0"],
		"confidence": 0.85,
		"warnings": []
	}`
	outcome, err := decodeOutcome(raw)
	require.NoError(t, err)
	assert.True(t, outcome.IsSignal)
	assert.Equal(t, domain.SignalTypeOpen, outcome.SignalType)
	assert.Equal(t, domain.Buy, outcome.Direction)
	assert.Equal(t, "XAUUSD", outcome.Symbol)
	assert.True(t, outcome.Entry.Equal(decimal.RequireFromString("1950.5")))
	require.Len(t, outcome.TakeProfits, 2)
}

func TestDecodeOutcomeMissingRequiredFieldsErrors(t *testing.T) {
	_, err := decodeOutcome(`{"is_signal": true}`)
	assert.Error(t, err)
}
