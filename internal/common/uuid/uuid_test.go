package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	id := New()
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, uuid.Version(4), id.Version())
}

func TestNewRandom(t *testing.T) {
	id, err := NewRandom()
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, uuid.Version(4), id.Version())
}
