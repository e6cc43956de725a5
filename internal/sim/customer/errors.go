package customer

import "errors"

var (
	ErrUnregisteredState = errors.New("unregistered state")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrMachineInactive   = errors.New("machine inactive")
	// ErrCallback wraps errors and panics raised by a state callback.
	ErrCallback = errors.New("state callback failed")
)

// Transition reasons that recovery paths share. Timeouts are not errors: the
// customer simply moves on to leaving.
const (
	ReasonStoreClosed       = "store closed"
	ReasonStoreClosing      = "store closing"
	ReasonNoDestination     = "no destination found"
	ReasonNothingSelected   = "nothing selected"
	ReasonQueueTimeout      = "queue timeout"
	ReasonCounterInvalid    = "counter invalidated"
	ReasonNoCounter         = "no open counter"
	ReasonPurchaseComplete  = "purchase complete"
	ReasonNavigationFailure = "navigation failure"
)
