package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 41)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNextPage)
	assert.True(t, p.HasPrevPage)

	p = NewPagination(1, 20, 0)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNextPage)
	assert.False(t, p.HasPrevPage)
}

func TestMessageReadByAll(t *testing.T) {
	m := &Message{SenderID: "a", ReadBy: map[string]time.Time{}}
	participants := []string{"a", "b", "c"}
	assert.False(t, m.ReadByAll(participants))

	m.ReadBy["b"] = time.Now()
	assert.False(t, m.ReadByAll(participants))

	m.ReadBy["c"] = time.Now()
	assert.True(t, m.ReadByAll(participants))

	// a chat nobody else is left in has no recipients
	assert.False(t, m.ReadByAll([]string{"a"}))
}

func TestMessageTypeValid(t *testing.T) {
	assert.True(t, MessageTypeImage.Valid())
	assert.False(t, MessageType("voice").Valid())
}

func TestChatOthers(t *testing.T) {
	c := &Chat{Participants: []string{"a", "b"}, ArchivedBy: []string{"b"}}
	assert.Equal(t, []string{"b"}, c.Others("a"))
	assert.True(t, c.HasParticipant("a"))
	assert.True(t, c.IsArchivedBy("b"))
	assert.False(t, c.IsArchivedBy("a"))
}
