package browser

import (
	"errors"
	"fmt"
	"time"
)

type FakeEngine struct {
	Session  *FakeSession
	StartErr error
	Starts   int
}

func (f *FakeEngine) Start(opts StartOptions) (Session, error) {
	f.Starts++
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.Session == nil {
		f.Session = &FakeSession{}
	}
	f.Session.Options = opts
	return f.Session, nil
}

// FakeSession hands out Page when set, otherwise a fresh empty page.
type FakeSession struct {
	Page    *FakePage
	Pages   []*FakePage
	Options StartOptions
	Closed  bool
}

func (s *FakeSession) NewPage() (Page, error) {
	page := s.Page
	if page == nil {
		page = NewFakePage()
	}
	s.Pages = append(s.Pages, page)
	return page, nil
}

func (s *FakeSession) Close() error {
	s.Closed = true
	return nil
}

type FakeAction struct {
	Kind     string
	Selector string
	Value    string
}

func (a FakeAction) String() string {
	if a.Value == "" {
		return a.Kind + " " + a.Selector
	}
	return a.Kind + " " + a.Selector + "=" + a.Value
}

// FakePage is an in-memory DOM keyed by selector. A selector is present when
// it has an entry in Elements; its slice holds the inner texts of the
// matches. Selectors in Selects behave as <select> elements and reject Fill.
type FakePage struct {
	URLValue string
	Elements map[string][]string
	Selects  map[string]bool
	Actions  []FakeAction
	GotoErr  error
	// PanicOn makes any action on that selector panic.
	PanicOn string
	// Hook runs after every successful action and may mutate the page.
	Hook   func(p *FakePage, a FakeAction)
	Closed bool
}

func NewFakePage() *FakePage {
	return &FakePage{Elements: map[string][]string{}, Selects: map[string]bool{}}
}

func (p *FakePage) Add(selector string, texts ...string) *FakePage {
	if len(texts) == 0 {
		texts = []string{""}
	}
	p.Elements[selector] = texts
	return p
}

func (p *FakePage) AddSelect(selector string) *FakePage {
	p.Selects[selector] = true
	return p.Add(selector)
}

func (p *FakePage) Remove(selector string) {
	delete(p.Elements, selector)
}

// Did reports whether an action of kind was performed on selector.
func (p *FakePage) Did(kind, selector string) bool {
	for _, a := range p.Actions {
		if a.Kind == kind && a.Selector == selector {
			return true
		}
	}
	return false
}

// Value returns the last value filled or selected into selector.
func (p *FakePage) Value(selector string) (string, bool) {
	for i := len(p.Actions) - 1; i >= 0; i-- {
		a := p.Actions[i]
		if a.Selector == selector && (a.Kind == "fill" || a.Kind == "select") {
			return a.Value, true
		}
	}
	return "", false
}

func (p *FakePage) record(a FakeAction) {
	p.Actions = append(p.Actions, a)
	if p.Hook != nil {
		p.Hook(p, a)
	}
}

func (p *FakePage) lookup(selector string) ([]string, error) {
	if p.PanicOn != "" && selector == p.PanicOn {
		panic("fake page: " + selector)
	}
	texts, ok := p.Elements[selector]
	if !ok || len(texts) == 0 {
		return nil, fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return texts, nil
}

func (p *FakePage) Goto(url string) error {
	if p.GotoErr != nil {
		return p.GotoErr
	}
	p.URLValue = url
	p.record(FakeAction{Kind: "goto", Value: url})
	return nil
}

func (p *FakePage) Click(selector string, _ time.Duration) error {
	if _, err := p.lookup(selector); err != nil {
		return err
	}
	p.record(FakeAction{Kind: "click", Selector: selector})
	return nil
}

func (p *FakePage) Fill(selector string, value string, _ time.Duration) error {
	if _, err := p.lookup(selector); err != nil {
		return err
	}
	if p.Selects[selector] {
		return errors.New(selector + ": element is not an <input>")
	}
	p.record(FakeAction{Kind: "fill", Selector: selector, Value: value})
	return nil
}

func (p *FakePage) Press(selector string, key string, _ time.Duration) error {
	if _, err := p.lookup(selector); err != nil {
		return err
	}
	p.record(FakeAction{Kind: "press", Selector: selector, Value: key})
	return nil
}

func (p *FakePage) SelectOption(selector string, value string, _ time.Duration) error {
	if _, err := p.lookup(selector); err != nil {
		return err
	}
	if !p.Selects[selector] {
		return errors.New(selector + ": element is not a <select>")
	}
	p.record(FakeAction{Kind: "select", Selector: selector, Value: value})
	return nil
}

func (p *FakePage) WaitFor(selector string, _ time.Duration) error {
	_, err := p.lookup(selector)
	return err
}

func (p *FakePage) Texts(selector string) ([]string, error) {
	texts, ok := p.Elements[selector]
	if !ok {
		return nil, nil
	}
	out := make([]string, len(texts))
	copy(out, texts)
	return out, nil
}

func (p *FakePage) ClickNth(selector string, index int, _ time.Duration) error {
	texts, err := p.lookup(selector)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(texts) {
		return fmt.Errorf("%s[%d]: %w", selector, index, ErrNotFound)
	}
	p.record(FakeAction{Kind: "click", Selector: selector, Value: texts[index]})
	return nil
}

func (p *FakePage) InnerText(selector string, _ time.Duration) (string, error) {
	texts, err := p.lookup(selector)
	if err != nil {
		return "", err
	}
	return texts[0], nil
}

func (p *FakePage) Close() error {
	p.Closed = true
	return nil
}
