package tasklib

import "sync"

// Registry is a process-wide lookup from task name to Task, the Go analogue
// of the source system's "load a script from a path" mechanism: rather than
// resolving an import path at runtime, a task registers itself once (by
// name) so a re-exec'd worker process (see workerproc) can find it again.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds t under its name, overwriting any previous entry with the
// same name.
func (r *Registry) Register(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.Name()] = t
}

// Lookup finds a task by name.
func (r *Registry) Lookup(name string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[name]
	return t, ok
}
