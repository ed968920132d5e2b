package cipher

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps operation names to operations.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

var defaultRegistry = NewRegistry()

// Register adds op. Names must be unique and non-empty.
func (r *Registry) Register(op Operation) error {
	if op == nil {
		return fmt.Errorf("cannot register nil operation")
	}
	name := op.Name()
	if name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[name]; exists {
		return fmt.Errorf("operation %s is already registered", name)
	}
	r.ops[name] = op
	return nil
}

// Get looks an operation up by name.
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// List returns all operations sorted by name.
func (r *Registry) List() []Operation {
	return r.filter(func(Operation) bool { return true })
}

// ListByType returns the operations of one type sorted by name.
func (r *Registry) ListByType(opType OperationType) []Operation {
	return r.filter(func(op Operation) bool { return op.Type() == opType })
}

// Unregister removes name if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, name)
}

func (r *Registry) filter(keep func(Operation) bool) []Operation {
	r.mu.RLock()
	ops := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		if keep(op) {
			ops = append(ops, op)
		}
	}
	r.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Name() < ops[j].Name()
	})
	return ops
}

// RegisterOperation adds op to the default registry.
func RegisterOperation(op Operation) error {
	return defaultRegistry.Register(op)
}

// GetOperation looks name up in the default registry.
func GetOperation(name string) (Operation, bool) {
	return defaultRegistry.Get(name)
}

// ListOperations lists the default registry.
func ListOperations() []Operation {
	return defaultRegistry.List()
}

// ListOperationsByType lists one type from the default registry.
func ListOperationsByType(opType OperationType) []Operation {
	return defaultRegistry.ListByType(opType)
}
