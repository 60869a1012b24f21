package amm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolEmergency(t *testing.T) {
	clock := newFakeClock()
	e := NewPoolEmergency([]string{"root", " "}, clock.Now, nil)

	assert.True(t, e.IsAdmin("root"))
	assert.False(t, e.IsAdmin(""))
	assert.NoError(t, e.CheckPoolAccess("p"))

	assert.ErrorIs(t, e.PausePool("p", "guest"), ErrUnauthorized)
	assert.ErrorIs(t, e.AddAdmin("guest", "guest"), ErrUnauthorized)
	require.NoError(t, e.AddAdmin("root", "ops"))

	require.NoError(t, e.PausePool("p", "ops"))
	assert.ErrorIs(t, e.CheckPoolAccess("p"), ErrPoolPaused)
	assert.NoError(t, e.CheckPoolAccess("other"))

	rec, ok := e.Record("p")
	require.True(t, ok)
	assert.Equal(t, "ops", rec.PausedBy)
	assert.Equal(t, epoch, rec.PausedAt)

	assert.ErrorIs(t, e.UnpausePool("p", "guest"), ErrUnauthorized)
	require.NoError(t, e.UnpausePool("p", "root"))
	assert.False(t, e.IsPaused("p"))
	_, ok = e.Record("p")
	assert.False(t, ok, "unpause removes the record")
}
