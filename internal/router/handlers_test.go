package router

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestModifiedLotDoubleKeepsOriginal(t *testing.T) {
	lot := modifiedLot(decimal.NewFromFloat(0.05), "DOUBLE", decimal.Zero, decimal.NewFromFloat(0.1))
	assert.True(t, lot.Equal(decimal.NewFromFloat(0.05)))
}

func TestModifiedLotAddScalesByMultiplier(t *testing.T) {
	lot := modifiedLot(decimal.NewFromFloat(0.05), "ADD", decimal.NewFromFloat(2), decimal.NewFromFloat(0.2))
	assert.True(t, lot.Equal(decimal.NewFromFloat(0.1)))
}

func TestModifiedLotClampedToMaxLot(t *testing.T) {
	lot := modifiedLot(decimal.NewFromFloat(0.05), "ADD", decimal.NewFromFloat(10), decimal.NewFromFloat(0.2))
	assert.True(t, lot.Equal(decimal.NewFromFloat(0.2)))
}
