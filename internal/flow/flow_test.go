package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickjm/shopbot/internal/browser"
	"github.com/patrickjm/shopbot/internal/config"
	"github.com/patrickjm/shopbot/internal/order"
	"github.com/patrickjm/shopbot/internal/selectors"
)

const results = `div.product-container a.product-link`

func racquetRequest() order.Request {
	r := order.Request{
		ItemName: "babolat pure aero",
		Category: order.Racquet,
		Variant: map[string]string{
			"size":           "27in",
			"string_type":    "polyester",
			"string_tension": "55 lbs",
		},
		Shopper:  order.Shopper{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "555-0100"},
		Shipping: order.Address{Street: "1 Court Rd", City: "Austin", State: "TX", PostalCode: "73301"},
		Payment:  order.Payment{CardNumber: "4111111111111111", CardExpiration: "12/30", CardCVV: "123"},
	}
	r.ApplyDefaults()
	return r
}

// shopPage has the primary selector for every stage.
func shopPage() *browser.FakePage {
	p := browser.NewFakePage()
	p.Add(`input[name="search"]`)
	p.Add(results, "Wilson Blade 98", "Babolat Pure Aero", "Head Speed MP")
	p.Add(`text="27in"`).Add(`text="polyester"`).Add(`input[name="string_tension"]`)
	p.Add(`#addToCartButton`)
	p.Add(`a[href*="ViewCart"]`).Add(`a[href*="Checkout"]`)
	for _, id := range []string{"#firstName", "#lastName", "#email", "#phone", "#address", "#city", "#zip"} {
		p.Add(id)
	}
	p.AddSelect(`#state`).AddSelect(`#country`)
	p.Add(`#continueToPayment`)
	p.Add(`#cardNumber`).Add(`#cardExp`).Add(`#cardCVV`)
	p.Add(`#placeOrderButton`)
	p.Add(`.order-confirmation`, "Thank you! Order #A123 confirmed.")
	return p
}

func newExecutor(page *browser.FakePage, chooser Chooser) (*Executor, *browser.FakeEngine) {
	engine := &browser.FakeEngine{Session: &browser.FakeSession{Page: page}}
	exec := New(engine, browser.StartOptions{Headless: true}, Options{
		Selectors:         selectors.Default(),
		Timeouts:          config.DefaultTimeouts(),
		MaxSearchAttempts: 3,
		Chooser:           chooser,
	})
	return exec, engine
}

func TestRunHappyPath(t *testing.T) {
	page := shopPage()
	exec, engine := newExecutor(page, nil)

	out, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	assert.True(t, out.Confirmed)
	assert.Equal(t, "Thank you! Order #A123 confirmed.", out.Confirmation)
	assert.True(t, engine.Session.Closed)

	assert.Equal(t, order.DefaultWebsiteURL, page.URLValue)
	// exact match wins over the first result
	last := findAction(page, "click", results)
	require.NotNil(t, last)
	assert.Equal(t, "Babolat Pure Aero", last.Value)

	state, _ := page.Value("#state")
	assert.Equal(t, "TX", state)
	country, _ := page.Value("#country")
	assert.Equal(t, order.DefaultCountry, country)
	exp, _ := page.Value("#cardExp")
	assert.Equal(t, "12/30", exp)
	assert.False(t, page.Did("fill", "#billingAddress"), "billing equals shipping")
	assert.True(t, page.Did("click", "#placeOrderButton"))

	res := Report(out, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Purchase flow executed successfully: Thank you! Order #A123 confirmed.", res.Message)
}

func TestRunMissingTensionFieldStillAddsToCart(t *testing.T) {
	page := shopPage()
	page.Remove(`input[name="string_tension"]`)
	exec, _ := newExecutor(page, nil)

	_, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	assert.True(t, page.Did("click", `text="27in"`))
	assert.True(t, page.Did("click", `text="polyester"`))
	assert.False(t, page.Did("fill", `input[name="string_tension"]`))
	assert.True(t, page.Did("click", "#addToCartButton"))
}

func TestRunFallsBackToFirstResult(t *testing.T) {
	page := shopPage()
	page.Add(results, "Wilson Blade 98", "Head Speed MP")
	exec, _ := newExecutor(page, nil)

	_, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	last := findAction(page, "click", results)
	require.NotNil(t, last)
	assert.Equal(t, "Wilson Blade 98", last.Value)
}

func TestRunSearchExhaustsAttempts(t *testing.T) {
	page := shopPage()
	page.Remove(results)
	exec, engine := newExecutor(page, nil)

	out, err := exec.Run(context.Background(), racquetRequest())
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.Equal(t, "Product search failed after 3 attempts", stepErr.Msg)
	assert.Equal(t, 3, countActions(page, "press", `input[name="search"]`))
	assert.False(t, page.Did("click", "#addToCartButton"))
	assert.True(t, engine.Session.Closed)

	res := Report(out, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Error: Product search failed after 3 attempts", res.Message)
}

func TestFirstResultSearchStaysBoundedWithoutLimit(t *testing.T) {
	page := shopPage()
	page.Remove(results)
	engine := &browser.FakeEngine{Session: &browser.FakeSession{Page: page}}
	exec := New(engine, browser.StartOptions{}, Options{
		Selectors: selectors.Default(),
		Timeouts:  config.DefaultTimeouts(),
		Chooser:   FirstResult{},
	})

	_, err := exec.Run(context.Background(), racquetRequest())
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.Equal(t, "Product search failed after 3 attempts", err.Error())
	assert.Equal(t, DefaultSearchAttempts, countActions(page, "press", `input[name="search"]`))
}

func TestRunFatalSteps(t *testing.T) {
	cases := []struct {
		name    string
		remove  []string
		want    error
		message string
	}{
		{"add to cart", []string{"#addToCartButton"}, ErrAddToCart, "Add to Cart button not found"},
		{"checkout", []string{`a[href*="Checkout"]`}, ErrCheckout, "Checkout button not found"},
		{"place order", []string{"#placeOrderButton"}, ErrPlaceOrder, "Place order button not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := shopPage()
			for _, sel := range tc.remove {
				page.Remove(sel)
			}
			exec, engine := newExecutor(page, nil)
			_, err := exec.Run(context.Background(), racquetRequest())
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.message, err.Error())
			assert.True(t, engine.Session.Closed)
		})
	}
}

func TestRunUsesAlternateSelectors(t *testing.T) {
	page := shopPage()
	page.Remove("#addToCartButton")
	page.Add(`button:has-text("Add to Cart")`)
	page.Remove(`a[href*="ViewCart"]`)
	page.Remove(`a[href*="Checkout"]`)
	page.Add(`button:has-text("Checkout")`)
	page.Remove("#placeOrderButton")
	page.Add(`button:has-text("Complete Purchase")`)
	page.Remove("#firstName")
	page.Add(`[placeholder="First Name"]`)
	exec, _ := newExecutor(page, nil)

	_, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	assert.True(t, page.Did("click", `button:has-text("Add to Cart")`))
	assert.True(t, page.Did("click", `button:has-text("Checkout")`))
	assert.True(t, page.Did("click", `button:has-text("Complete Purchase")`))
	v, _ := page.Value(`[placeholder="First Name"]`)
	assert.Equal(t, "Ada", v)
}

func TestRunStateFallsBackToTextInput(t *testing.T) {
	page := shopPage()
	page.Selects["#state"] = false
	exec, _ := newExecutor(page, nil)

	_, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	assert.False(t, page.Did("select", "#state"))
	v, _ := page.Value("#state")
	assert.Equal(t, "TX", v)
}

func TestRunSplitExpirationAndBilling(t *testing.T) {
	page := shopPage()
	page.Remove("#cardExp")
	page.Add("#expMonth").Add("#expYear").Add("#billingAddress")
	req := racquetRequest()
	req.BillingAddress = "77 Baseline Ave"
	exec, _ := newExecutor(page, nil)

	_, err := exec.Run(context.Background(), req)
	require.NoError(t, err)
	month, _ := page.Value("#expMonth")
	year, _ := page.Value("#expYear")
	assert.Equal(t, "12", month)
	assert.Equal(t, "30", year)
	billing, _ := page.Value("#billingAddress")
	assert.Equal(t, "77 Baseline Ave", billing)
}

func TestRunOptionalExtras(t *testing.T) {
	page := shopPage()
	page.Add("#couponCode").Add("#applyCoupon").Add(`text="Expedited"`)
	page.Add(`input[name="giftWrap"]`).Add(`textarea[name="giftMessage"]`)
	req := racquetRequest()
	req.CouponCode = "SPRING10"
	req.ShippingOption = "Expedited"
	req.GiftMessage = "Happy birthday"
	exec, _ := newExecutor(page, nil)

	_, err := exec.Run(context.Background(), req)
	require.NoError(t, err)
	coupon, _ := page.Value("#couponCode")
	assert.Equal(t, "SPRING10", coupon)
	assert.True(t, page.Did("click", "#applyCoupon"))
	assert.True(t, page.Did("click", `text="Expedited"`))
	assert.True(t, page.Did("click", `input[name="giftWrap"]`))
	msg, _ := page.Value(`textarea[name="giftMessage"]`)
	assert.Equal(t, "Happy birthday", msg)
}

func TestRunSkipsExtrasWhenAbsent(t *testing.T) {
	page := shopPage()
	page.Add("#couponCode")
	exec, _ := newExecutor(page, nil)

	_, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	assert.False(t, page.Did("fill", "#couponCode"))
}

func TestRunConfirmationFallbacks(t *testing.T) {
	page := shopPage()
	page.Remove(".order-confirmation")
	page.Add(`text="Order Confirmation"`)
	exec, _ := newExecutor(page, nil)

	out, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	assert.Equal(t, Outcome{Confirmation: "Order confirmed", Confirmed: true}, out)
}

func TestRunAmbiguousWithoutConfirmation(t *testing.T) {
	page := shopPage()
	page.Remove(".order-confirmation")
	exec, _ := newExecutor(page, nil)

	out, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	assert.False(t, out.Confirmed)
	res := Report(out, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Order may have been placed, but confirmation was not detected", res.Message)
}

func TestRunValidationNeverStartsBrowser(t *testing.T) {
	page := shopPage()
	exec, engine := newExecutor(page, nil)
	req := racquetRequest()
	req.Category = "balls"

	_, err := exec.Run(context.Background(), req)
	var catErr *order.CategoryError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, 0, engine.Starts)

	req = racquetRequest()
	req.Shopper.Phone = ""
	_, err = exec.Run(context.Background(), req)
	var vErr *order.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"phone"}, vErr.Missing)
	assert.Equal(t, 0, engine.Starts)
}

func TestRunNavigationFailure(t *testing.T) {
	page := shopPage()
	page.GotoErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	exec, engine := newExecutor(page, nil)

	_, err := exec.Run(context.Background(), racquetRequest())
	assert.ErrorIs(t, err, ErrNavigation)
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to open "+order.DefaultWebsiteURL))
	assert.True(t, engine.Session.Closed)
}

func TestRunRecoversPanicAndReleasesBrowser(t *testing.T) {
	page := shopPage()
	page.PanicOn = "#addToCartButton"
	exec, engine := newExecutor(page, nil)

	out, err := exec.Run(context.Background(), racquetRequest())
	require.Error(t, err)
	assert.True(t, engine.Session.Closed)
	res := Report(out, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Error in purchase flow: fake page: #addToCartButton", res.Message)
}

func TestRunCancelledContext(t *testing.T) {
	page := shopPage()
	exec, engine := newExecutor(page, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Run(ctx, racquetRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, engine.Session.Closed)
}

type scriptedChooser struct {
	choices  []Choice
	requery  []string
	offered  [][]string
	requests int
}

func (s *scriptedChooser) Choose(_ string, titles []string) (Choice, error) {
	s.offered = append(s.offered, titles)
	c := s.choices[0]
	s.choices = s.choices[1:]
	return c, nil
}

func (s *scriptedChooser) Requery(string) (string, error) {
	s.requests++
	q := s.requery[0]
	s.requery = s.requery[1:]
	return q, nil
}

func TestRunChooserPicksIndex(t *testing.T) {
	page := shopPage()
	page.Add(results, "Wilson Blade 98", "Head Speed MP")
	chooser := &scriptedChooser{choices: []Choice{{Index: 1}}}
	exec, _ := newExecutor(page, chooser)

	_, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	require.Len(t, chooser.offered, 1)
	assert.Equal(t, []string{"Wilson Blade 98", "Head Speed MP"}, chooser.offered[0])
	last := findAction(page, "click", results)
	require.NotNil(t, last)
	assert.Equal(t, "Head Speed MP", last.Value)
}

func TestRunChooserRequeriesAfterEmptySearch(t *testing.T) {
	page := shopPage()
	page.Remove(results)
	page.Hook = func(p *browser.FakePage, a browser.FakeAction) {
		if a.Kind == "fill" && a.Selector == `input[name="search"]` && a.Value == "pure aero" {
			p.Add(results, "Pure Aero")
		}
	}
	chooser := &scriptedChooser{requery: []string{"pure aero"}}
	exec, _ := newExecutor(page, chooser)

	_, err := exec.Run(context.Background(), racquetRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, chooser.requests)
	assert.Empty(t, chooser.offered, "exact match after requery needs no choice")
}

func TestExactMatch(t *testing.T) {
	titles := []string{"Pure Aero Team", " BABOLAT Pure Aero ", "babolat pure aero"}
	assert.Equal(t, 1, ExactMatch(titles, "babolat pure aero"))
	assert.Equal(t, -1, ExactMatch(titles, "pure"))
}

func TestReportError(t *testing.T) {
	res := Report(Outcome{}, errors.New("boom"))
	assert.Equal(t, order.Result{Success: false, Message: "Error: boom"}, res)
}

func TestReportPanic(t *testing.T) {
	res := Report(Outcome{}, &browser.PanicError{Value: "nil map"})
	assert.Equal(t, order.Result{Success: false, Message: "Error in purchase flow: nil map"}, res)
}

func findAction(p *browser.FakePage, kind, selector string) *browser.FakeAction {
	var found *browser.FakeAction
	for i := range p.Actions {
		if p.Actions[i].Kind == kind && p.Actions[i].Selector == selector {
			found = &p.Actions[i]
		}
	}
	return found
}

func countActions(p *browser.FakePage, kind, selector string) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == kind && a.Selector == selector {
			n++
		}
	}
	return n
}
