package nfwgobfs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSupervisorDuplicateQueue(t *testing.T) {
	entries := []QueueEntry{
		{QueueNum: 1, Direction: DirectionOut, Name: "a", Key: DeriveKey("s"), MTU: DefaultMTU},
		{QueueNum: 1, Direction: DirectionIn, Name: "b", Key: DeriveKey("s"), MTU: DefaultMTU},
	}
	_, err := NewSupervisor(entries)
	require.Error(t, err)
	assert.IsType(t, ErrDuplicateQueue{}, err)
}

func TestSupervisorNoEntries(t *testing.T) {
	s, err := NewSupervisor(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.RunContext(ctx))
}
