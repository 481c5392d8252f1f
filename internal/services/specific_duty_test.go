package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSpecificDutyPerHundredKg(t *testing.T) {
	weight := decimal.RequireFromString("250")
	got, reason := ComputeSpecificDuty("35.10 EUR / 100 kg", &weight)
	require.Empty(t, reason)
	require.NotNil(t, got)
	// 35.10 * 250 / 100
	assert.True(t, got.Equal(decimal.RequireFromString("87.75")))
}

func TestComputeSpecificDutyDefaultUnit(t *testing.T) {
	weight := decimal.RequireFromString("4")
	got, reason := ComputeSpecificDuty("2.5 EUR kg", &weight)
	require.Empty(t, reason)
	require.NotNil(t, got)
	assert.True(t, got.Equal(decimal.RequireFromString("10")))
}

func TestComputeSpecificDutyNoKgUnit(t *testing.T) {
	weight := decimal.RequireFromString("10")
	got, reason := ComputeSpecificDuty("15 EUR / 100 litres", &weight)
	assert.Nil(t, got)
	assert.Equal(t, "Specific duty requires quantity/weight to compute.", reason)
}

func TestComputeSpecificDutyMissingWeight(t *testing.T) {
	got, reason := ComputeSpecificDuty("35.10 EUR / 100 kg", nil)
	assert.Nil(t, got)
	assert.Equal(t, "Specific duty requires weight_kg to compute.", reason)
}

func TestComputeSpecificDutyUnparseable(t *testing.T) {
	weight := decimal.RequireFromString("10")
	got, reason := ComputeSpecificDuty("EUR per kg", &weight)
	assert.Nil(t, got)
	assert.Equal(t, "Specific duty expression could not be parsed.", reason)
}
