package customer

// State identifies one phase of a customer's life in the store.
type State string

const (
	StateEntering   State = "ENTERING"
	StateShopping   State = "SHOPPING"
	StatePurchasing State = "PURCHASING"
	StateLeaving    State = "LEAVING"
)

// IsTerminal reports whether no transition may leave the state.
func (s State) IsTerminal() bool { return s == StateLeaving }

func (s State) IsValid() bool {
	switch s {
	case StateEntering, StateShopping, StatePurchasing, StateLeaving:
		return true
	default:
		return false
	}
}

func (s State) String() string { return string(s) }

func AllStates() []State {
	return []State{StateEntering, StateShopping, StatePurchasing, StateLeaving}
}
