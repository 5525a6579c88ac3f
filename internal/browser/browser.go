package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type StartOptions struct {
	Browser  string
	Headless bool
	Stealth  bool
	// NavigationTimeout bounds Goto.
	NavigationTimeout time.Duration
}

// PanicError is a panic recovered while a session was open.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprint(e.Value)
}

type Engine interface {
	Start(opts StartOptions) (Session, error)
}

type Session interface {
	NewPage() (Page, error)
	Close() error
}

// Page is the set of interactions the purchase flow performs. Selectors use
// the Playwright dialect: CSS, text="..." and tag:has-text("...").
type Page interface {
	Goto(url string) error
	Click(selector string, timeout time.Duration) error
	Fill(selector string, value string, timeout time.Duration) error
	Press(selector string, key string, timeout time.Duration) error
	SelectOption(selector string, value string, timeout time.Duration) error
	WaitFor(selector string, timeout time.Duration) error
	// Texts returns the trimmed inner text of every element matching selector.
	Texts(selector string) ([]string, error)
	ClickNth(selector string, index int, timeout time.Duration) error
	InnerText(selector string, timeout time.Duration) (string, error)
	Close() error
}

var ErrUnknownEngine = errors.New("unknown engine")

// NewEngine maps a configured engine name to its driver.
func NewEngine(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "playwright":
		return PlaywrightEngine{}, nil
	case "rod":
		return RodEngine{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, name)
}

// ErrNotFound is returned when no element matches before the timeout.
var ErrNotFound = errors.New("element not found")

// Open starts a session and a page, runs fn and closes the session on every
// exit path. A panic inside fn is converted into an error after the session
// is closed.
func Open(engine Engine, opts StartOptions, fn func(Page) error) (err error) {
	session, err := engine.Start(opts)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		_ = session.Close()
	}()
	page, err := session.NewPage()
	if err != nil {
		return fmt.Errorf("new page: %w", err)
	}
	return fn(page)
}
