package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeInput(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", SummarizeInput("short"))

	long := strings.Repeat("a", 250)
	assert.Len(t, SummarizeInput(long), MaxInputSummaryLen)

	// Multi-byte runes are counted as characters, not bytes.
	accented := strings.Repeat("ç", 250)
	got := SummarizeInput(accented)
	assert.Equal(t, MaxInputSummaryLen, len([]rune(got)))
	assert.True(t, strings.HasPrefix(accented, got))
}

func TestRunStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, RunStatusQueued.Terminal())
	assert.True(t, RunStatusDone.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
}

func TestPeriod(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, time.January, 31, 23, 59, 0, 0, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, Period("2025-02"), PeriodOf(ts), "period is computed in UTC")

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Period("2024-12").End())
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Period("2025-02").End())

	p, err := ParsePeriod("2024-11")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC), p.Start())

	_, err = ParsePeriod("2024-13")
	assert.Error(t, err)
	_, err = ParsePeriod("nov/2024")
	assert.Error(t, err)
}
