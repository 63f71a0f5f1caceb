package nlp

import (
	"sync"
	"time"

	"github.com/zaploop/voice-assistant-navidrome/internal/catalog"
)

// ContextSlot is one remembered subject usable for elliptical follow-ups.
type ContextSlot struct {
	ID   string
	Name string
}

// ConversationContext is a point-in-time view of the remembered subjects.
// Expired slots are returned empty.
type ConversationContext struct {
	Artist *ContextSlot
	Genre  *ContextSlot
	Album  *ContextSlot
}

// ContextStore tracks the last resolved subject per kind so elliptical
// commands ("metti quello") can be resolved. The Resolver is the only
// writer. Context is never persisted; a restart clears it.
type ContextStore struct {
	mu           sync.Mutex
	artist       *ContextSlot
	genre        *ContextSlot
	album        *ContextSlot
	lastActivity time.Time
	timeout      time.Duration

	now func() time.Time // test hook
}

// NewContextStore creates a store with the given idle timeout.
func NewContextStore(timeout time.Duration) *ContextStore {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ContextStore{
		timeout: timeout,
		now:     time.Now,
	}
}

// Get returns the unexpired context. All slots come back nil after the idle
// timeout has elapsed since the last Set.
func (s *ContextStore) Get() ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isExpiredLocked() {
		s.clearLocked()
		return ConversationContext{}
	}
	return ConversationContext{Artist: s.artist, Genre: s.genre, Album: s.album}
}

// Set updates one kind-specific slot and resets the idle timer. Kinds
// without a slot (track, playlist) only reset the timer.
func (s *ContextStore) Set(kind catalog.Kind, id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isExpiredLocked() {
		s.clearLocked()
	}

	slot := &ContextSlot{ID: id, Name: name}
	switch kind {
	case catalog.KindArtist:
		s.artist = slot
	case catalog.KindGenre:
		s.genre = slot
	case catalog.KindAlbum:
		s.album = slot
	}
	s.lastActivity = s.now()
}

// Clear drops all slots immediately.
func (s *ContextStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *ContextStore) isExpiredLocked() bool {
	if s.lastActivity.IsZero() {
		return false
	}
	return s.now().Sub(s.lastActivity) > s.timeout
}

func (s *ContextStore) clearLocked() {
	s.artist = nil
	s.genre = nil
	s.album = nil
	s.lastActivity = time.Time{}
}
