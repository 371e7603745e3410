// Package runtime wires connections, rooms and presence to the conversation store.
package runtime

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"slices"
	"sync"
)

var _ contract.IPresence = (*PresenceRegistry)(nil)

// PresenceRegistry maps users to their live handles.
// handles keeps registration order per user, the last element being the most recent.
// owners is the reverse index and always mirrors handles.
type PresenceRegistry struct {
	mu      sync.RWMutex
	handles map[domain.UserID][]domain.Handle
	owners  map[domain.Handle]domain.UserID
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		handles: make(map[domain.UserID][]domain.Handle),
		owners:  make(map[domain.Handle]domain.UserID),
	}
}

// SetOnline registers handle as the most recent connection of user.
// A handle previously bound to another user is moved over.
// It returns true when user had no live handle before.
func (p *PresenceRegistry) SetOnline(user domain.UserID, handle domain.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if previous, ok := p.owners[handle]; ok {
		if previous == user {
			handles := slices.DeleteFunc(p.handles[user], func(h domain.Handle) bool { return h == handle })
			p.handles[user] = append(handles, handle)
			return false
		}
		p.remove(previous, handle)
	}
	first := len(p.handles[user]) == 0
	p.handles[user] = append(p.handles[user], handle)
	p.owners[handle] = user
	return first
}

// Lookup returns the most recently registered handle of user.
func (p *PresenceRegistry) Lookup(user domain.UserID) (domain.Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	handles := p.handles[user]
	if len(handles) == 0 {
		return "", false
	}
	return handles[len(handles)-1], true
}

// Handles returns every live handle of user, oldest first.
func (p *PresenceRegistry) Handles(user domain.UserID) []domain.Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.handles[user])
}

// RemoveIfMatches drops handle only if it currently belongs to user, so a late
// disconnect of an old connection never clobbers a newer one.
// It returns true when the user has no handle left.
func (p *PresenceRegistry) RemoveIfMatches(user domain.UserID, handle domain.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if owner, ok := p.owners[handle]; !ok || owner != user {
		return false
	}
	return p.remove(user, handle)
}

// RemoveHandle resolves the owner of handle through the reverse index and removes it.
func (p *PresenceRegistry) RemoveHandle(handle domain.Handle) (domain.UserID, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.owners[handle]
	if !ok {
		return "", false, false
	}
	return user, p.remove(user, handle), true
}

func (p *PresenceRegistry) UserOf(handle domain.Handle) (domain.UserID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	user, ok := p.owners[handle]
	return user, ok
}

// OnlineUsers returns the number of users with at least one handle.
func (p *PresenceRegistry) OnlineUsers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}

// remove must be called with the lock held.
func (p *PresenceRegistry) remove(user domain.UserID, handle domain.Handle) bool {
	delete(p.owners, handle)
	remaining := slices.DeleteFunc(p.handles[user], func(h domain.Handle) bool { return h == handle })
	if len(remaining) == 0 {
		delete(p.handles, user)
		return true
	}
	p.handles[user] = remaining
	return false
}
