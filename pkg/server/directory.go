package server

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/obsidium-dev/obsidium/pkg/packet"
)

// Handle is what the directory holds of a connection. The connection's
// actor owns everything else.
type Handle interface {
	ID() ConnID
	Player() Player
	Send(p packet.Packet) error
	Close(reason string) error
}

// Directory indexes the connections that reached play. The zero value is
// not usable; use NewDirectory.
type Directory struct {
	mu     sync.RWMutex
	byID   map[ConnID]Handle
	byUUID map[uuid.UUID]ConnID
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byID:   make(map[ConnID]Handle),
		byUUID: make(map[uuid.UUID]ConnID),
	}
}

// Insert adds h. It returns ErrDuplicateID if the id is present.
func (d *Directory) Insert(h Handle) error {
	id := h.ID()
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id]; ok {
		return ErrDuplicateID
	}
	d.byID[id] = h
	if u := h.Player().UUID; u != uuid.Nil {
		d.byUUID[u] = id
	}
	return nil
}

// Remove deletes id. Removing an absent id is a no-op. It reports whether
// an entry was removed.
func (d *Directory) Remove(id ConnID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.byID[id]
	if !ok {
		return false
	}
	delete(d.byID, id)
	if u := h.Player().UUID; d.byUUID[u] == id {
		delete(d.byUUID, u)
	}
	return true
}

// Get returns the handle of id.
func (d *Directory) Get(id ConnID) (Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.byID[id]
	return h, ok
}

// FindByUUID returns the connection of the player with the given UUID.
func (d *Directory) FindByUUID(u uuid.UUID) (Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byUUID[u]
	if !ok {
		return nil, false
	}
	return d.byID[id], true
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// Snapshot returns the current handles ordered by id.
func (d *Directory) Snapshot() []Handle {
	d.mu.RLock()
	out := make([]Handle, 0, len(d.byID))
	for _, h := range d.byID {
		out = append(out, h)
	}
	d.mu.RUnlock()
	slices.SortFunc(out, func(a, b Handle) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return out
}

// Broadcast queues p on every connection except the given ids and returns
// how many accepted it. The lock is not held while queueing.
func (d *Directory) Broadcast(p packet.Packet, except ...ConnID) int {
	d.mu.RLock()
	targets := make([]Handle, 0, len(d.byID))
	for id, h := range d.byID {
		if !slices.Contains(except, id) {
			targets = append(targets, h)
		}
	}
	d.mu.RUnlock()

	n := 0
	for _, h := range targets {
		if h.Send(p) == nil {
			n++
		}
	}
	return n
}
