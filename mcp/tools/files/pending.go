package files

import "sync"

// PendingActions remembers, per session, the file ids proposed for deletion
// by the last find_files_to_delete call.
type PendingActions struct {
	mu  sync.Mutex
	ids map[string][]string
}

// NewPendingActions returns an empty store.
func NewPendingActions() *PendingActions {
	return &PendingActions{ids: make(map[string][]string)}
}

// Set replaces the pending ids of a session.
func (p *PendingActions) Set(sessionID string, ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(ids) == 0 {
		delete(p.ids, sessionID)
		return
	}
	p.ids[sessionID] = append([]string(nil), ids...)
}

// Peek returns the pending ids without consuming them.
func (p *PendingActions) Peek(sessionID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids[sessionID]...)
}

// Take returns and clears the pending ids of a session.
func (p *PendingActions) Take(sessionID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := p.ids[sessionID]
	delete(p.ids, sessionID)
	return ids
}

// Clear drops any pending ids of a session.
func (p *PendingActions) Clear(sessionID string) {
	p.mu.Lock()
	delete(p.ids, sessionID)
	p.mu.Unlock()
}
