package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightEngine struct{}

func (p PlaywrightEngine) Start(opts StartOptions) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	bt, err := browserType(pw, opts.Browser)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	browser, err := bt.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	ctx, err := browser.NewContext(playwright.BrowserNewContextOptions{})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, err
	}
	return &playwrightSession{pw: pw, browser: browser, ctx: ctx, navTimeout: opts.NavigationTimeout}, nil
}

type playwrightSession struct {
	pw         *playwright.Playwright
	browser    playwright.Browser
	ctx        playwright.BrowserContext
	navTimeout time.Duration
}

func (s *playwrightSession) NewPage() (Page, error) {
	page, err := s.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return &playwrightPage{page: page, navTimeout: s.navTimeout}, nil
}

func (s *playwrightSession) Close() error {
	if s.ctx != nil {
		_ = s.ctx.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pw != nil {
		s.pw.Stop()
	}
	return nil
}

type playwrightPage struct {
	page       playwright.Page
	navTimeout time.Duration
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *playwrightPage) Goto(url string) error {
	opts := playwright.PageGotoOptions{}
	if p.navTimeout > 0 {
		opts.Timeout = ms(p.navTimeout)
	}
	_, err := p.page.Goto(url, opts)
	return err
}

func (p *playwrightPage) Click(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: ms(timeout)})
	if err != nil && strings.HasPrefix(selector, "text=") {
		return p.textMiss(selector, err)
	}
	return notFound(selector, err)
}

func (p *playwrightPage) Fill(selector string, value string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: ms(timeout)})
	return notFound(selector, err)
}

func (p *playwrightPage) Press(selector string, key string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().Press(key, playwright.LocatorPressOptions{Timeout: ms(timeout)})
	return notFound(selector, err)
}

func (p *playwrightPage) SelectOption(selector string, value string, timeout time.Duration) error {
	_, err := p.page.Locator(selector).First().SelectOption(
		playwright.SelectOptionValues{ValuesOrLabels: &[]string{value}},
		playwright.LocatorSelectOptionOptions{Timeout: ms(timeout)},
	)
	return notFound(selector, err)
}

func (p *playwrightPage) WaitFor(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{Timeout: ms(timeout)})
	return notFound(selector, err)
}

func (p *playwrightPage) Texts(selector string) ([]string, error) {
	texts, err := p.page.Locator(selector).AllInnerTexts()
	if err != nil {
		return nil, err
	}
	for i := range texts {
		texts[i] = strings.TrimSpace(texts[i])
	}
	return texts, nil
}

func (p *playwrightPage) ClickNth(selector string, index int, timeout time.Duration) error {
	err := p.page.Locator(selector).Nth(index).Click(playwright.LocatorClickOptions{Timeout: ms(timeout)})
	return notFound(selector, err)
}

func (p *playwrightPage) InnerText(selector string, timeout time.Duration) (string, error) {
	text, err := p.page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{Timeout: ms(timeout)})
	if err != nil {
		return "", notFound(selector, err)
	}
	return strings.TrimSpace(text), nil
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func notFound(selector string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return err
}

// textMiss reports a failed text click, naming the closest clickable text on
// the page when there is one.
func (p *playwrightPage) textMiss(selector string, err error) error {
	err = notFound(selector, err)
	text := strings.Trim(strings.TrimPrefix(selector, "text="), `"`)
	suggestion, sErr := p.suggestText(text)
	if sErr == nil && suggestion != "" && suggestion != text {
		return fmt.Errorf("%w (did you mean %q?)", err, suggestion)
	}
	return err
}

func (p *playwrightPage) suggestText(text string) (string, error) {
	value, err := p.page.Evaluate(`() => {
  const candidates = new Set();
  const pushText = (t) => {
    if (!t) return;
    const v = String(t).trim();
    if (v) candidates.add(v);
  };
  document.querySelectorAll("a,button,[role=button],label,option,[aria-label]").forEach(el => {
    pushText(el.innerText);
    if (el.getAttribute) pushText(el.getAttribute("aria-label"));
  });
  return Array.from(candidates).slice(0, 200);
}`)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	var candidates []string
	if err := json.Unmarshal(b, &candidates); err != nil {
		return "", err
	}
	return closestText(text, candidates), nil
}

func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "chromium", "":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, errors.New("unknown browser: " + name)
	}
}
