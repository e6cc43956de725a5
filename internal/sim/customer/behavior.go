package customer

// baseBehavior is embedded by every state: no-op callbacks and a validator
// that only lets the customer leave.
type baseBehavior struct{}

func (baseBehavior) OnEnter(*Context) error  { return nil }
func (baseBehavior) OnUpdate(*Context) error { return nil }
func (baseBehavior) OnExit(*Context) error   { return nil }

func (baseBehavior) CanTransitionTo(to State, _ *Context) bool {
	return to == StateLeaving
}
