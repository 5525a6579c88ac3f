package flow

import (
	"errors"
	"strings"

	"github.com/patrickjm/shopbot/internal/browser"
	"github.com/patrickjm/shopbot/internal/order"
)

const (
	errorPrefix      = "Error: "
	panicPrefix      = "Error in purchase flow: "
	successPrefix    = "Purchase flow executed successfully: "
	ambiguousMessage = "Order may have been placed, but confirmation was not detected"
)

// Report maps the end state of a run to the caller-facing result. Success is
// derived from the message so the two fields cannot disagree.
func Report(out Outcome, err error) order.Result {
	var msg string
	var panicked *browser.PanicError
	switch {
	case errors.As(err, &panicked):
		msg = panicPrefix + panicked.Error()
	case err != nil:
		msg = errorPrefix + err.Error()
	case !out.Confirmed:
		msg = ambiguousMessage
	default:
		msg = successPrefix + out.Confirmation
	}
	return order.Result{Success: !strings.HasPrefix(msg, "Error"), Message: msg}
}
