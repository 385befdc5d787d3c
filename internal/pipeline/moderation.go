package pipeline

import "sync"

// Moderation holds the process-wide ban and mute sets consulted at
// admission. Banned requesters get a visible rejection; muted requesters
// are dropped silently.
type Moderation struct {
	mu     sync.RWMutex
	banned map[string]struct{}
	muted  map[string]struct{}
}

// NewModeration creates empty ban/mute sets.
func NewModeration() *Moderation {
	return &Moderation{
		banned: make(map[string]struct{}),
		muted:  make(map[string]struct{}),
	}
}

// Ban adds the requester to the ban set.
func (m *Moderation) Ban(requester string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned[requester] = struct{}{}
}

// Unban removes the requester from the ban set.
func (m *Moderation) Unban(requester string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.banned, requester)
}

// Mute adds the requester to the mute set.
func (m *Moderation) Mute(requester string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted[requester] = struct{}{}
}

// Unmute removes the requester from the mute set.
func (m *Moderation) Unmute(requester string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.muted, requester)
}

// IsBanned reports ban membership.
func (m *Moderation) IsBanned(requester string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.banned[requester]
	return ok
}

// IsMuted reports mute membership.
func (m *Moderation) IsMuted(requester string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.muted[requester]
	return ok
}

// BannedCount reports the size of the ban set.
func (m *Moderation) BannedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.banned)
}
