package uuid

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id := New()
	assert.NotEqual(t, Nil, id)
	assert.True(t, IsUUIDv7(id))

	id, err := NewRandom()
	require.NoError(t, err)
	assert.True(t, IsUUIDv7(id))
	assert.False(t, IsUUIDv7(uuid.New()))
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(New().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))
	assert.True(t, ts.Before(time.Now().Add(time.Second)))

	_, err = Timestamp("invalid-uuid")
	assert.Error(t, err)
	_, err = Timestamp(uuid.New().String())
	assert.Error(t, err, "version 4")
}
