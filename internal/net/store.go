package net

import (
	"sort"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/protocol"
)

// SessionStore holds the live sessions. Game loop only.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (st *SessionStore) Add(s *Session) { st.sessions[s.ID] = s }

func (st *SessionStore) Remove(id uint64) { delete(st.sessions, id) }

func (st *SessionStore) Get(id uint64) *Session { return st.sessions[id] }

func (st *SessionStore) Len() int { return len(st.sessions) }

// ForEach visits sessions in connection order. fn may remove the session
// it is visiting.
func (st *SessionStore) ForEach(fn func(*Session)) {
	ids := make([]uint64, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if s, ok := st.sessions[id]; ok {
			fn(s)
		}
	}
}

// ByClient finds the joined session of a client.
func (st *SessionStore) ByClient(client ecs.ClientID) *Session {
	for _, s := range st.sessions {
		if s.client == client && s.State() == protocol.StateJoined {
			return s
		}
	}
	return nil
}
