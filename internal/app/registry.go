package app

import "sync"

// Registry is the process-wide directory of live sessions, keyed by join
// code and by durable session id. It owns no game logic; sessions are
// independent units of concurrency behind it.
type Registry struct {
	mu       sync.RWMutex
	byCode   map[string]*session
	idToCode map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byCode:   make(map[string]*session),
		idToCode: make(map[string]string),
	}
}

func (r *Registry) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCode[s.joinCode] = s
	r.idToCode[s.id] = s.joinCode
}

func (r *Registry) sessionByCode(code string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byCode[code]
	return s, ok
}

func (r *Registry) sessionByID(id string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.idToCode[id]
	if !ok {
		return nil, false
	}
	s, ok := r.byCode[code]
	return s, ok
}

func (r *Registry) hasCode(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byCode[code]
	return ok
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.idToCode[id]
	if !ok {
		return
	}
	delete(r.idToCode, id)
	delete(r.byCode, code)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}
