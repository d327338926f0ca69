package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReport(t *testing.T) {
	start := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	fake := clockwork.NewFakeClockAt(start)
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	r := NewRunReport("data/lake")
	r.Add(OK("a_2023-01-01.tif", day(1, 1)))
	r.Add(Skipped("b.tif", SkipNoDate, nil))
	r.Add(Skipped("c_2023-01-03.tif", SkipUnreadable, errors.New("corrupt header")))
	r.PointSkips = append(r.PointSkips, PointSkip{File: "a_2023-01-01.tif", Point: "P9", Reason: SkipPointOutOfRange})
	fake.Advance(3 * time.Second)
	r.Finish()

	assert.Equal(t, start, r.StartedAt)
	assert.Equal(t, start.Add(3*time.Second), r.FinishedAt)
	assert.NotEqual(t, [16]byte{}, [16]byte(r.ID))
	assert.Equal(t, 1, r.Survivors())
	require.Len(t, r.Skipped(), 2)
	assert.Equal(t, "corrupt header", r.Skipped()[1].Detail)
	assert.Equal(t, map[SkipReason]int{SkipNoDate: 1, SkipUnreadable: 1, SkipPointOutOfRange: 1}, r.SkipCounts())
	assert.NoError(t, r.Err())
}

func TestRunReport_ZeroSurvivorsIsFatal(t *testing.T) {
	r := NewRunReport("data/empty")
	r.Add(Skipped("x.tif", SkipNoDate, nil))
	assert.ErrorIs(t, r.Err(), ErrNoFrames)

	assert.ErrorIs(t, NewRunReport("data/none").Err(), ErrNoFrames)
}
