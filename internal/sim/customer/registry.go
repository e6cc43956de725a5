package customer

import (
	"fmt"
	"sort"
)

// Behavior is the code behind one state. Behaviors keep no per-customer data:
// everything lives in the Context, so one registry serves every customer.
type Behavior interface {
	OnEnter(c *Context) error
	OnUpdate(c *Context) error
	OnExit(c *Context) error
	CanTransitionTo(to State, c *Context) bool
}

// Registry maps states to behaviors. Build it once and share it read-only.
type Registry struct {
	behaviors map[State]Behavior
}

func NewRegistry() *Registry {
	return &Registry{behaviors: map[State]Behavior{}}
}

// DefaultRegistry wires the four customer states.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(StateEntering, Entering{})
	_ = r.Register(StateShopping, Shopping{})
	_ = r.Register(StatePurchasing, Purchasing{})
	_ = r.Register(StateLeaving, Leaving{})
	return r
}

func (r *Registry) Register(s State, b Behavior) error {
	if b == nil {
		return fmt.Errorf("nil behavior for %s", s)
	}
	if _, ok := r.behaviors[s]; ok {
		return fmt.Errorf("state %s already registered", s)
	}
	r.behaviors[s] = b
	return nil
}

func (r *Registry) Lookup(s State) (Behavior, bool) {
	if r == nil {
		return nil, false
	}
	b, ok := r.behaviors[s]
	return b, ok
}

func (r *Registry) States() []State {
	out := make([]State, 0, len(r.behaviors))
	for s := range r.behaviors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
