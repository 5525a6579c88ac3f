package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodEngine drives Chrome over CDP with go-rod. It understands the same
// selector dialect as the Playwright engine by rewriting text selectors into
// rod's ElementR queries.
type RodEngine struct{}

func (RodEngine) Start(opts StartOptions) (Session, error) {
	// leakless deadlocks on Windows, see go-rod/rod#853
	l := launcher.New().
		Leakless(runtime.GOOS != "windows").
		Headless(opts.Headless)
	if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, err
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, err
	}
	return &rodSession{launcher: l, browser: b, stealth: opts.Stealth, navTimeout: opts.NavigationTimeout}, nil
}

// RodBrowserPath reports the local Chromium binary rod would launch.
func RodBrowserPath() (string, bool) {
	return launcher.LookPath()
}

type rodSession struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	stealth    bool
	navTimeout time.Duration
}

func (s *rodSession) NewPage() (Page, error) {
	var page *rod.Page
	var err error
	if s.stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, err
	}
	return &rodPage{page: page, navTimeout: s.navTimeout}, nil
}

func (s *rodSession) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	return err
}

type rodPage struct {
	page       *rod.Page
	navTimeout time.Duration
}

type rodQuery struct {
	css   string
	regex string
}

var (
	textSelector    = regexp.MustCompile(`^text="(.*)"$`)
	hasTextSelector = regexp.MustCompile(`^(.*):has-text\("(.*)"\)$`)
)

// parseRodSelector maps text="X" to an exact text match on any element and
// tag:has-text("X") to a case-insensitive substring match on tag.
func parseRodSelector(selector string) rodQuery {
	if m := textSelector.FindStringSubmatch(selector); m != nil {
		return rodQuery{css: "*", regex: "/^\\s*" + regexp.QuoteMeta(m[1]) + "\\s*$/"}
	}
	if m := hasTextSelector.FindStringSubmatch(selector); m != nil {
		css := m[1]
		if css == "" {
			css = "*"
		}
		return rodQuery{css: css, regex: "/" + regexp.QuoteMeta(m[2]) + "/i"}
	}
	return rodQuery{css: selector}
}

func (p *rodPage) element(selector string, timeout time.Duration) (*rod.Element, error) {
	q := parseRodSelector(selector)
	page := p.page.Timeout(timeout)
	var el *rod.Element
	var err error
	if q.regex != "" {
		el, err = page.ElementR(q.css, q.regex)
	} else {
		el, err = page.Element(q.css)
	}
	if err != nil {
		return nil, rodNotFound(selector, err)
	}
	return el, nil
}

func (p *rodPage) Goto(url string) error {
	page := p.page
	if p.navTimeout > 0 {
		page = page.Timeout(p.navTimeout)
	}
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) Click(selector string, timeout time.Duration) error {
	el, err := p.element(selector, timeout)
	if err != nil {
		return err
	}
	return rodNotFound(selector, el.Click(proto.InputMouseButtonLeft, 1))
}

func (p *rodPage) Fill(selector string, value string, timeout time.Duration) error {
	el, err := p.element(selector, timeout)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return rodNotFound(selector, err)
	}
	return rodNotFound(selector, el.Input(value))
}

func (p *rodPage) Press(selector string, key string, timeout time.Duration) error {
	el, err := p.element(selector, timeout)
	if err != nil {
		return err
	}
	if key == "Enter" {
		return rodNotFound(selector, el.Type(input.Enter))
	}
	return rodNotFound(selector, el.Input(key))
}

func (p *rodPage) SelectOption(selector string, value string, timeout time.Duration) error {
	el, err := p.element(selector, timeout)
	if err != nil {
		return err
	}
	if err := el.Select([]string{value}, true, rod.SelectorTypeText); err == nil {
		return nil
	}
	escaped := strings.ReplaceAll(value, `"`, `\"`)
	return rodNotFound(selector, el.Select([]string{fmt.Sprintf(`[value="%s"]`, escaped)}, true, rod.SelectorTypeCSSSector))
}

func (p *rodPage) WaitFor(selector string, timeout time.Duration) error {
	el, err := p.element(selector, timeout)
	if err != nil {
		return err
	}
	return rodNotFound(selector, el.WaitVisible())
}

func (p *rodPage) Texts(selector string) ([]string, error) {
	els, err := p.page.Elements(parseRodSelector(selector).css)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			text = ""
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}

func (p *rodPage) ClickNth(selector string, index int, timeout time.Duration) error {
	if _, err := p.element(selector, timeout); err != nil {
		return err
	}
	els, err := p.page.Timeout(timeout).Elements(parseRodSelector(selector).css)
	if err != nil {
		return rodNotFound(selector, err)
	}
	if index < 0 || index >= len(els) {
		return fmt.Errorf("%s[%d]: %w", selector, index, ErrNotFound)
	}
	return rodNotFound(selector, els[index].Click(proto.InputMouseButtonLeft, 1))
}

func (p *rodPage) InnerText(selector string, timeout time.Duration) (string, error) {
	el, err := p.element(selector, timeout)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", rodNotFound(selector, err)
	}
	return strings.TrimSpace(text), nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

func rodNotFound(selector string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *rod.ElementNotFoundError
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return err
}
