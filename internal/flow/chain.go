package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickjm/shopbot/internal/browser"
	"github.com/patrickjm/shopbot/internal/selectors"
)

// perform runs one target against the page.
func perform(p browser.Page, t selectors.Target, def selectors.Action, value string, timeout time.Duration) error {
	switch t.Resolve(def) {
	case selectors.Click:
		return p.Click(t.Selector, timeout)
	case selectors.Fill:
		return p.Fill(t.Selector, value, timeout)
	case selectors.Select:
		return p.SelectOption(t.Selector, value, timeout)
	default:
		return fmt.Errorf("unknown action %q", t.Action)
	}
}

// tryChain attempts each target in order and stops at the first success.
// The i-th target uses timeouts[i], or the last timeout when the list is
// shorter than the chain.
func tryChain(p browser.Page, chain selectors.Chain, def selectors.Action, value string, timeouts ...time.Duration) (selectors.Target, error) {
	if len(chain) == 0 {
		return selectors.Target{}, errors.New("no selectors configured")
	}
	var errs []error
	for i, t := range chain {
		timeout := timeouts[len(timeouts)-1]
		if i < len(timeouts) {
			timeout = timeouts[i]
		}
		err := perform(p, t, def, value, timeout)
		if err == nil {
			return t, nil
		}
		errs = append(errs, err)
	}
	return selectors.Target{}, errors.Join(errs...)
}
