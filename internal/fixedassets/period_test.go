package fixedassets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeriodValidation(t *testing.T) {
	_, err := NewPeriod(2024, 13)
	require.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = NewPeriod(1800, 1)
	require.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = NewPeriodKey(0, 2024, 1)
	require.ErrorIs(t, err, ErrInvalidPeriod)

	key, err := NewPeriodKey(4, 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, "company:4:period:2024-02", key.String())
}

func TestPeriodNavigation(t *testing.T) {
	jan := Period{Year: 2024, Month: 1}
	assert.Equal(t, Period{Year: 2023, Month: 12}, jan.Prev())
	assert.Equal(t, Period{Year: 2024, Month: 2}, jan.Next())
	assert.Equal(t, Period{Year: 2025, Month: 1}, Period{Year: 2024, Month: 12}.Next())
	assert.True(t, jan.Prev().Before(jan))
	assert.False(t, jan.Before(jan))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Period{Year: 2024, Month: 2}.End())
}

func TestMonthsBetween(t *testing.T) {
	start := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, MonthsBetween(start, Period{Year: 2024, Month: 1}))
	assert.Equal(t, 12, MonthsBetween(start, Period{Year: 2025, Month: 1}))
	assert.Equal(t, -1, MonthsBetween(start, Period{Year: 2023, Month: 12}))
}

func TestPeriodDisplay(t *testing.T) {
	assert.Equal(t, "March 2024", PeriodDisplay(Period{Year: 2024, Month: 3}))
}
