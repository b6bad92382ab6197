// Package registry maintains the process-wide list of retrieval delegates the
// RAG middleware can route queries to. The registry is an explicit object
// constructed at process start and passed by reference to every workflow that
// needs it; it is append-only during setup and read-only during execution,
// with no removal operation.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"genforge/internal/logging"
	"genforge/internal/types"
)

// SentinelID identifies the fallback entry offered to the ranking model. The
// model names this ID when none of the registered delegates can answer the
// query; the middleware translates it into a no-agent-available response.
const SentinelID = "_no_suitable_agent_"

const sentinelDescription = "Fallback: choose this entry when none of the agents above can answer the query " +
	"(for example when every agent would have zero confidence)."

// Entry pairs a delegate with a free-text capability description.
type Entry struct {
	ID          string
	Description string
	Agent       types.RAGAgent
}

// Registry holds delegate entries in registration order. Order is significant:
// the listing is concatenated verbatim into the ranking prompt.
type Registry struct {
	mu       sync.RWMutex
	entries  []Entry
	sentinel bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register appends a delegate with its capability description. It fails when
// the delegate is nil, carries an empty ID, or collides with an existing
// entry.
func (r *Registry) Register(agent types.RAGAgent, description string) error {
	if agent == nil {
		return fmt.Errorf("registry: agent must not be nil")
	}
	id := agent.ID()
	if id == "" {
		return fmt.Errorf("registry: agent %q has an empty ID", agent.Name())
	}
	if id == SentinelID {
		return fmt.Errorf("registry: agent ID %q is reserved", SentinelID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return fmt.Errorf("registry: agent ID %q already registered", id)
		}
	}
	r.entries = append(r.entries, Entry{ID: id, Description: description, Agent: agent})
	logging.L(logging.CategoryRegistry).Info("registered RAG agent",
		zap.String("id", id), zap.String("name", agent.Name()))
	return nil
}

// EnsureSentinel enables the fallback entry. It is a no-op while the registry
// is empty: without real delegates there is nothing to rank against.
func (r *Registry) EnsureSentinel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 || r.sentinel {
		return
	}
	r.sentinel = true
	logging.L(logging.CategoryRegistry).Info("sentinel entry enabled")
}

// Agents returns the registered entries in registration order. The sentinel
// is not included; it has no delegate to invoke.
func (r *Registry) Agents() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns the number of registered delegates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Resolve looks up a delegate entry by ID. Selection results are stored as
// IDs and resolved here at use time, never held as references.
func (r *Registry) Resolve(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Listing renders "id: description" lines for the ranking prompt, one per
// entry in registration order, with the sentinel always last.
func (r *Registry) Listing() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	for _, e := range r.entries {
		fmt.Fprintf(&b, "%s: %s\n", e.ID, e.Description)
	}
	if r.sentinel {
		fmt.Fprintf(&b, "%s: %s\n", SentinelID, sentinelDescription)
	}
	return strings.TrimRight(b.String(), "\n")
}
