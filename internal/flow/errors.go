package flow

import "errors"

var (
	ErrNavigation   = errors.New("navigation failed")
	ErrSearchFailed = errors.New("product search failed")
	ErrSelect       = errors.New("product selection failed")
	ErrAddToCart    = errors.New("add to cart failed")
	ErrCheckout     = errors.New("checkout navigation failed")
	ErrPlaceOrder   = errors.New("place order failed")
)

// StepError is a fatal failure of a required stage. Msg is the text reported
// to the caller; Err carries the sentinel and the underlying cause.
type StepError struct {
	Step string
	Msg  string
	Err  error
}

func (e *StepError) Error() string {
	return e.Msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func fatal(step string, sentinel error, msg string, cause error) *StepError {
	return &StepError{Step: step, Msg: msg, Err: errors.Join(sentinel, cause)}
}
