package engine

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Workflow builds the per-item work routine for one generation kind. A work
// closure cannot travel over the wire, so HTTP callers submit by kind and the
// registry resolves the workflow that owns it.
//
// Dependency inversion: the engine routes by kind without knowing what a
// flyer or a jingle is; tool modules own their payload structures.
type Workflow interface {
	// Kind returns the workflow tag used for registration and job routing
	// (e.g. "flyer.batch", "video.promo").
	Kind() string

	// Work validates the submitted item payloads and returns the per-item
	// work routine for the batch.
	Work(items []json.RawMessage) (WorkFunc, error)
}

// WorkflowRegistry manages workflows by kind.
// Thread-safe for concurrent registration and lookup.
type WorkflowRegistry struct {
	workflows map[string]Workflow
	mu        sync.RWMutex
}

// NewWorkflowRegistry creates an empty workflow registry.
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{
		workflows: make(map[string]Workflow),
	}
}

// Register adds a workflow under its kind.
// Panics if a workflow is already registered for that kind.
func (r *WorkflowRegistry) Register(wf Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := wf.Kind()
	if _, exists := r.workflows[kind]; exists {
		panic(fmt.Sprintf("workflow already registered for kind: %s", kind))
	}
	r.workflows[kind] = wf
}

// Get retrieves the workflow for a kind. Returns nil if none is registered.
func (r *WorkflowRegistry) Get(kind string) Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workflows[kind]
}

// Has checks if a workflow is registered for a kind.
func (r *WorkflowRegistry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.workflows[kind]
	return exists
}

// Kinds returns all registered workflow kinds.
func (r *WorkflowRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.workflows))
	for kind := range r.workflows {
		kinds = append(kinds, kind)
	}
	return kinds
}
