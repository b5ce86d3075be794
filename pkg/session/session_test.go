package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_CreateIsIdempotentForSameID(t *testing.T) {
	s := New()
	first := s.Create("fixed-id", "trip", "gpt-4o-mini")
	s.AppendMessage("fixed-id", Message{Role: RoleUser, Content: "hi"})

	second := s.Create("fixed-id", "ignored-name", "ignored-model")

	require.Equal(t, first.ID, second.ID)
	got, ok := s.Get("fixed-id")
	require.True(t, ok)
	require.Equal(t, "trip", got.Name)
	require.Len(t, got.Messages, 1)
}

func TestStore_ListExcludesEmptyIdleSessions(t *testing.T) {
	s := New()
	fresh := s.Create("", "fresh-empty", "")
	_ = fresh

	populated := s.Create("", "populated", "")
	s.AppendMessage(populated.ID, Message{Role: RoleUser, Content: "hi"})

	stale := s.Create("", "stale-empty", "")
	if e, ok := s.items[stale.ID]; ok {
		e.mu.Lock()
		e.session.LastActive = time.Now().Add(-2 * time.Hour)
		e.mu.Unlock()
	}

	listed := s.List(false)
	var names []string
	for _, sess := range listed {
		names = append(names, sess.Name)
	}
	require.Contains(t, names, "fresh-empty")
	require.Contains(t, names, "populated")
	require.NotContains(t, names, "stale-empty")
}

func TestStore_ListOrdersByLastActiveDescending(t *testing.T) {
	s := New()
	a := s.Create("", "a", "")
	s.AppendMessage(a.ID, Message{Role: RoleUser, Content: "x", Timestamp: time.Now().Add(-time.Minute)})
	b := s.Create("", "b", "")
	s.AppendMessage(b.ID, Message{Role: RoleUser, Content: "y", Timestamp: time.Now()})

	listed := s.List(true)
	require.Equal(t, "b", listed[0].Name)
	require.Equal(t, "a", listed[1].Name)
}

func TestStore_DeleteRemovesSession(t *testing.T) {
	s := New()
	sess := s.Create("", "temp", "")
	s.Delete(sess.ID)
	_, ok := s.Get(sess.ID)
	require.False(t, ok)
}

func TestStore_MessageCountInvariant(t *testing.T) {
	s := New()
	sess := s.Create("", "x", "")
	s.AppendMessage(sess.ID, Message{Role: RoleUser, Content: "1"})
	s.AppendMessage(sess.ID, Message{Role: RoleAssistant, Content: "2", Reasoning: "because"})

	got, _ := s.Get(sess.ID)
	require.Equal(t, 2, got.MessageCount())
	require.Equal(t, len(got.Messages), got.MessageCount())
}
