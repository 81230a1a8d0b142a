package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, DefaultZone, loc.String())

	loc, err = LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestStartOfDay_CrossesUTCBoundary(t *testing.T) {
	// 21:30 UTC is already the next day in Almaty.
	at := time.Date(2024, 3, 10, 21, 30, 0, 0, time.UTC)

	got := StartOfDay(at, AlmatyTZ)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, AlmatyTZ), got)
	assert.Equal(t, "2024-03-11", FormatIn(at, AlmatyTZ, FormatDate))
}

func TestStartOfWeek(t *testing.T) {
	sunday := time.Date(2024, 3, 17, 15, 0, 0, 0, AlmatyTZ)
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, AlmatyTZ)

	assert.Equal(t, monday, StartOfWeek(sunday, AlmatyTZ))
	assert.Equal(t, monday, StartOfWeek(monday.Add(time.Hour), AlmatyTZ))
}
