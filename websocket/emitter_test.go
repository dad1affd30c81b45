package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEmitterOrder verifies listeners fire in registration order.
func TestEmitterOrder(t *testing.T) {
	t.Parallel()

	e := newEmitter()

	var got []int

	e.add(EventConnected, 1)
	e.add(EventConnected, 2)
	e.add(EventConnected, 3)

	for _, fn := range e.listeners(EventConnected) {
		got = append(got, fn.(int))
	}

	assert.Equal(t, []int{1, 2, 3}, got)
}

// TestEmitterRemove verifies removal by listener id.
func TestEmitterRemove(t *testing.T) {
	t.Parallel()

	e := newEmitter()

	e.add(EventData, "a")
	id := e.add(EventData, "b")
	e.add(EventData, "c")

	require.True(t, e.remove(id))
	assert.False(t, e.remove(id), "second removal should report missing")

	var got []string

	for _, fn := range e.listeners(EventData) {
		got = append(got, fn.(string))
	}

	assert.Equal(t, []string{"a", "c"}, got)
}

// TestEmitterRemoveAll verifies selective and full clears.
func TestEmitterRemoveAll(t *testing.T) {
	t.Parallel()

	e := newEmitter()
	e.add(EventData, "a")
	e.add(EventUpdate, "b")

	e.removeAll(EventData)
	assert.Empty(t, e.listeners(EventData))
	assert.Len(t, e.listeners(EventUpdate), 1)

	e.removeAll()
	assert.Empty(t, e.listeners(EventUpdate))
}

// TestEmitterNoListeners verifies emission with no listeners is a no-op.
func TestEmitterNoListeners(t *testing.T) {
	t.Parallel()

	e := newEmitter()
	assert.Nil(t, e.listeners(EventError))
}
