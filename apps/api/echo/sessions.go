package echoapi

import (
	"sync"

	"github.com/trezcool/shule/core/admission"
)

// sessions holds the open admission workflows, one per page session.
type sessions struct {
	mu sync.RWMutex
	m  map[string]*admission.Workflow
}

func newSessions() *sessions {
	return &sessions{m: make(map[string]*admission.Workflow)}
}

// draftKey scopes a session's draft to its entity.
func draftKey(entity admission.Entity, id string) string {
	return string(entity) + ":" + id
}

func (ss *sessions) get(entity admission.Entity, id string) (*admission.Workflow, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	wf, ok := ss.m[draftKey(entity, id)]
	return wf, ok
}

// add keeps the first workflow registered under a key; the later one is closed.
func (ss *sessions) add(entity admission.Entity, id string, wf *admission.Workflow) *admission.Workflow {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	key := draftKey(entity, id)
	if cur, ok := ss.m[key]; ok {
		wf.Close()
		return cur
	}
	ss.m[key] = wf
	return wf
}

func (ss *sessions) remove(entity admission.Entity, id string) bool {
	ss.mu.Lock()
	wf, ok := ss.m[draftKey(entity, id)]
	delete(ss.m, draftKey(entity, id))
	ss.mu.Unlock()
	if ok {
		wf.Close()
	}
	return ok
}

func (ss *sessions) closeAll() {
	ss.mu.Lock()
	open := ss.m
	ss.m = make(map[string]*admission.Workflow)
	ss.mu.Unlock()
	for _, wf := range open {
		wf.Close()
	}
}
