package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUpdate(t *testing.T) {
	eventID := uuid.New()
	at := time.Date(2026, 6, 1, 20, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	u, err := NewUpdate(TypeCheckIn, eventID, map[string]string{"name": "Ada"}, at)
	require.NoError(t, err)
	assert.Equal(t, TypeCheckIn, u.Type)
	assert.Equal(t, eventID, u.EventID)
	assert.JSONEq(t, `{"name":"Ada"}`, string(u.Data))
	assert.Equal(t, time.UTC, u.Timestamp.Location())

	u, err = NewUpdate(TypeGuestsChanged, eventID, nil, at)
	require.NoError(t, err)
	assert.Nil(t, u.Data)

	_, err = NewUpdate(TypeCheckIn, eventID, make(chan int), at)
	require.Error(t, err)
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6f1c3e0a-6a53-4b7e-9d0c-2f4b8b0f9e11")
	assert.Equal(t, "qrcheckin:event:6f1c3e0a-6a53-4b7e-9d0c-2f4b8b0f9e11", Channel(id))
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Update{}))
}
