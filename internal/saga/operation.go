package saga

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation is the in-memory record of one in-flight saga instance. It
// exists only to make running sagas observable for diagnostics; it is not
// persisted.
type Operation struct {
	ID        string
	Symbol    string
	StartedAt time.Time
	Status    string
}

// OperationRegistry tracks in-flight operations. Finished entries linger
// for ttl so a diagnostics read shortly after completion still sees the
// outcome, then a detached timer removes them. That removal is best-effort
// bookkeeping and can never affect a saga's result.
type OperationRegistry struct {
	mu  sync.Mutex
	ops map[string]*Operation
	ttl time.Duration
}

// NewOperationRegistry creates a registry whose finished entries are kept
// for ttl before being garbage-collected.
func NewOperationRegistry(ttl time.Duration) *OperationRegistry {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &OperationRegistry{
		ops: make(map[string]*Operation),
		ttl: ttl,
	}
}

// Begin registers a new in-flight operation for the symbol.
func (r *OperationRegistry) Begin(symbol string) *Operation {
	op := &Operation{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		StartedAt: time.Now().UTC(),
		Status:    "running",
	}
	r.mu.Lock()
	r.ops[op.ID] = op
	r.mu.Unlock()
	return op
}

// Finish records the final status and schedules removal after the TTL.
func (r *OperationRegistry) Finish(op *Operation, status string) {
	r.mu.Lock()
	op.Status = status
	r.mu.Unlock()

	time.AfterFunc(r.ttl, func() {
		r.mu.Lock()
		delete(r.ops, op.ID)
		r.mu.Unlock()
	})
}

// Snapshot returns a copy of all currently tracked operations.
func (r *OperationRegistry) Snapshot() []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, *op)
	}
	return out
}
