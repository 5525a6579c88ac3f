package flow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickjm/shopbot/internal/browser"
	"github.com/patrickjm/shopbot/internal/config"
	"github.com/patrickjm/shopbot/internal/order"
	"github.com/patrickjm/shopbot/internal/selectors"
)

// Choice is the answer to a product disambiguation. A non-empty Query asks
// for a new search instead of selecting Index.
type Choice struct {
	Index int
	Query string
}

// Chooser resolves the cases the flow cannot decide on its own.
type Chooser interface {
	// Choose is called when no result title equals the query.
	Choose(query string, titles []string) (Choice, error)
	// Requery is called after a search that produced no results and returns
	// the name to search for next.
	Requery(query string) (string, error)
}

// FirstResult picks the first result and repeats failed searches unchanged.
type FirstResult struct{}

func (FirstResult) Choose(string, []string) (Choice, error) { return Choice{Index: 0}, nil }
func (FirstResult) Requery(query string) (string, error) { return query, nil }

// DefaultSearchAttempts bounds searches when the Chooser cannot change the
// query and no positive limit was given.
const DefaultSearchAttempts = 3

type Options struct {
	Selectors selectors.Catalog
	Timeouts  config.Timeouts
	// MaxSearchAttempts bounds product searches; zero means unbounded, except
	// with FirstResult, which repeats the same query and so always gets
	// DefaultSearchAttempts.
	MaxSearchAttempts int
	Chooser           Chooser
	Logger            *zap.Logger
}

// Outcome is the terminal state of a flow that did not fail. Confirmed is
// false when the order was placed but no confirmation showed up.
type Outcome struct {
	Confirmation string
	Confirmed    bool
}

type Executor struct {
	engine browser.Engine
	start  browser.StartOptions
	opts   Options
	log    *zap.Logger
}

func New(engine browser.Engine, start browser.StartOptions, opts Options) *Executor {
	if opts.Chooser == nil {
		opts.Chooser = FirstResult{}
	}
	if _, ok := opts.Chooser.(FirstResult); ok && opts.MaxSearchAttempts <= 0 {
		opts.MaxSearchAttempts = DefaultSearchAttempts
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if start.NavigationTimeout == 0 {
		start.NavigationTimeout = opts.Timeouts.Navigation
	}
	return &Executor{engine: engine, start: start, opts: opts, log: opts.Logger.Named("flow")}
}

// Run validates req and, when valid, drives one browser session through the
// purchase. The browser is released before Run returns.
func (e *Executor) Run(ctx context.Context, req order.Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	var out Outcome
	err := browser.Open(e.engine, e.start, func(p browser.Page) error {
		var err error
		out, err = e.purchase(ctx, p, req)
		return err
	})
	if err != nil {
		e.log.Error("purchase flow failed", zap.Error(err))
		return Outcome{}, err
	}
	return out, nil
}

func (e *Executor) purchase(ctx context.Context, p browser.Page, req order.Request) (Outcome, error) {
	t := e.opts.Timeouts
	sel := e.opts.Selectors

	e.log.Info("navigating", zap.String("url", req.WebsiteURL))
	if err := p.Goto(req.WebsiteURL); err != nil {
		return Outcome{}, fatal("navigate", ErrNavigation, fmt.Sprintf("Failed to open %s: %v", req.WebsiteURL, err), err)
	}

	if err := e.selectProduct(ctx, p, req.ItemName); err != nil {
		return Outcome{}, err
	}

	if err := checkpoint(ctx, "variant"); err != nil {
		return Outcome{}, err
	}
	e.selectVariant(p, req)

	e.log.Info("adding product to cart")
	if _, err := tryChain(p, sel.Cart.AddToCart, selectors.Click, "", t.Action); err != nil {
		return Outcome{}, fatal("add_to_cart", ErrAddToCart, "Add to Cart button not found", err)
	}
	if err := p.WaitFor(sel.Cart.ClosePopup, t.Popup); err == nil {
		if err := p.Click(sel.Cart.ClosePopup, t.Popup); err != nil {
			e.log.Debug("popup did not close", zap.Error(err))
		}
	}

	if err := checkpoint(ctx, "checkout"); err != nil {
		return Outcome{}, err
	}
	e.log.Info("navigating to checkout")
	if _, err := tryChain(p, sel.Cart.ViewCart, selectors.Click, "", t.ViewCart, t.ViewCartAlt); err != nil {
		e.log.Debug("view cart control not found, trying checkout directly", zap.Error(err))
	}
	if _, err := tryChain(p, sel.Cart.Checkout, selectors.Click, "", t.Checkout, t.Action); err != nil {
		return Outcome{}, fatal("checkout", ErrCheckout, "Checkout button not found", err)
	}

	if err := checkpoint(ctx, "shipping"); err != nil {
		return Outcome{}, err
	}
	e.fillShipping(p, req)
	e.applyExtras(p, req)

	e.log.Info("proceeding to payment")
	if _, err := tryChain(p, sel.Payment.Continue, selectors.Click, "", t.Action); err != nil {
		e.log.Warn("continue to payment button not found", zap.Error(err))
	}

	if err := checkpoint(ctx, "payment"); err != nil {
		return Outcome{}, err
	}
	e.fillPayment(p, req)

	if err := checkpoint(ctx, "place_order"); err != nil {
		return Outcome{}, err
	}
	e.log.Info("placing order")
	if _, err := tryChain(p, sel.Payment.PlaceOrder, selectors.Click, "", t.Action); err != nil {
		return Outcome{}, fatal("place_order", ErrPlaceOrder, "Place order button not found", err)
	}

	return e.awaitConfirmation(p), nil
}

func checkpoint(ctx context.Context, step string) error {
	if err := ctx.Err(); err != nil {
		return &StepError{Step: step, Msg: "Purchase flow cancelled before " + step, Err: err}
	}
	return nil
}

// selectProduct searches for name, retrying up to MaxSearchAttempts, and
// opens the exact case-insensitive title match or the Chooser's pick.
func (e *Executor) selectProduct(ctx context.Context, p browser.Page, name string) error {
	limit := e.opts.MaxSearchAttempts
	query := name
	var lastErr error
	attempt := 0
	for limit <= 0 || attempt < limit {
		if err := checkpoint(ctx, "search"); err != nil {
			return err
		}
		attempt++
		e.log.Info("searching for product", zap.String("query", query), zap.Int("attempt", attempt))
		titles, err := e.search(p, query)
		if err != nil {
			lastErr = err
			e.log.Error("product search returned nothing", zap.Int("attempt", attempt), zap.Error(err))
			if limit > 0 && attempt >= limit {
				break
			}
			next, err := e.opts.Chooser.Requery(query)
			if err != nil {
				return fatal("search", ErrSearchFailed, "Product search aborted: "+err.Error(), err)
			}
			query = next
			continue
		}

		index := ExactMatch(titles, query)
		if index < 0 {
			choice, err := e.opts.Chooser.Choose(query, titles)
			if err != nil {
				return fatal("select", ErrSelect, "Unable to select a product: "+err.Error(), err)
			}
			if choice.Query != "" {
				query = choice.Query
				continue
			}
			index = choice.Index
		}
		if index < 0 || index >= len(titles) {
			return fatal("select", ErrSelect, "Unable to select a product", fmt.Errorf("index %d out of range", index))
		}
		e.log.Info("selecting product", zap.String("title", titles[index]), zap.Int("index", index))
		if err := p.ClickNth(e.opts.Selectors.Search.Results, index, e.opts.Timeouts.Action); err != nil {
			return fatal("select", ErrSelect, "Unable to select a product", err)
		}
		return nil
	}
	return fatal("search", ErrSearchFailed, fmt.Sprintf("Product search failed after %d attempts", attempt), lastErr)
}

func (e *Executor) search(p browser.Page, query string) ([]string, error) {
	s := e.opts.Selectors.Search
	t := e.opts.Timeouts
	if err := p.Fill(s.Input, query, t.Action); err != nil {
		return nil, err
	}
	if err := p.Press(s.Input, "Enter", t.Action); err != nil {
		return nil, err
	}
	if err := p.WaitFor(s.Results, t.Search); err != nil {
		return nil, err
	}
	titles, err := p.Texts(s.Results)
	if err != nil {
		return nil, err
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("%s: %w", s.Results, browser.ErrNotFound)
	}
	return titles, nil
}

// ExactMatch returns the index of the first title equal to query ignoring
// case and surrounding space, or -1.
func ExactMatch(titles []string, query string) int {
	q := strings.TrimSpace(query)
	for i, title := range titles {
		if strings.EqualFold(strings.TrimSpace(title), q) {
			return i
		}
	}
	return -1
}

func (e *Executor) selectVariant(p browser.Page, req order.Request) {
	v := e.opts.Selectors.Variant
	timeout := e.opts.Timeouts.Variant
	e.log.Info("selecting variants", zap.String("category", string(req.Category)))

	clickOption := func(key, label string) {
		value := req.VariantValue(key)
		if value == "" {
			return
		}
		if err := p.Click(selectors.Option(v.Option, value), timeout); err != nil {
			e.log.Warn(label+" option not found", zap.String("value", value), zap.Error(err))
		}
	}
	fill := func(key, label string, chain selectors.Chain) {
		value := req.VariantValue(key)
		if value == "" {
			return
		}
		if _, err := tryChain(p, chain, selectors.Fill, value, timeout); err != nil {
			e.log.Warn(label+" field not found", zap.Error(err))
		}
	}

	switch req.Category {
	case order.Racquet:
		clickOption(order.VariantSize, "racquet size")
		clickOption(order.VariantStringType, "string type")
		if name := req.VariantValue(order.VariantStringName); name != "" {
			e.log.Debug("string name requested", zap.String("string_name", name))
		}
		fill(order.VariantStringTension, "string tension", v.StringTension)
	case order.Garment, order.Shoes:
		clickOption(order.VariantSize, "size")
		clickOption(order.VariantColor, "color")
	default:
		fill(order.VariantOption, "custom option", v.CustomOption)
	}
}

func (e *Executor) fillShipping(p browser.Page, req order.Request) {
	s := e.opts.Selectors.Shipping
	e.log.Info("filling shipping details")
	e.fillField(p, "first name", s.FirstName, req.Shopper.FirstName)
	e.fillField(p, "last name", s.LastName, req.Shopper.LastName)
	e.fillField(p, "email", s.Email, req.Shopper.Email)
	e.fillField(p, "phone", s.Phone, req.Shopper.Phone)
	e.fillField(p, "address", s.Address, req.Shipping.Street)
	e.fillField(p, "city", s.City, req.Shipping.City)
	e.fillField(p, "state", s.State, req.Shipping.State)
	e.fillField(p, "postal code", s.PostalCode, req.Shipping.PostalCode)
	e.fillField(p, "country", s.Country, req.Shipping.Country)
}

// fillField is best-effort: a field no selector matches is logged and left
// blank.
func (e *Executor) fillField(p browser.Page, name string, chain selectors.Chain, value string) bool {
	target, err := tryChain(p, chain, selectors.Fill, value, e.opts.Timeouts.Field)
	if err != nil {
		e.log.Warn(name+" field not found or not fillable", zap.Error(err))
		return false
	}
	e.log.Debug("filled field", zap.String("field", name), zap.Stringer("target", target))
	return true
}

func (e *Executor) applyExtras(p browser.Page, req order.Request) {
	x := e.opts.Selectors.Extras
	t := e.opts.Timeouts

	if req.CouponCode != "" {
		e.log.Info("applying coupon", zap.String("coupon", req.CouponCode))
		if e.fillField(p, "coupon", x.CouponCode, req.CouponCode) {
			if _, err := tryChain(p, x.ApplyCoupon, selectors.Click, "", t.Action); err != nil {
				e.log.Warn("apply coupon control not found", zap.Error(err))
			}
		}
	}

	if req.ShippingOption != "" {
		e.log.Info("selecting shipping option", zap.String("option", req.ShippingOption))
		if err := p.Click(selectors.Option(x.ShippingOption, req.ShippingOption), t.Action); err != nil {
			e.log.Warn("shipping option not found", zap.Error(err))
		}
	}

	if req.GiftMessage != "" {
		e.log.Info("adding gift wrapping")
		if _, err := tryChain(p, x.GiftWrap, selectors.Click, "", t.Action); err != nil {
			e.log.Warn("gift wrapping option not found", zap.Error(err))
			return
		}
		e.fillField(p, "gift message", x.GiftMessage, req.GiftMessage)
	}
}

func (e *Executor) fillPayment(p browser.Page, req order.Request) {
	s := e.opts.Selectors.Payment
	e.log.Info("filling payment details")
	e.fillField(p, "card number", s.CardNumber, req.Payment.CardNumber)

	if _, err := tryChain(p, s.CardExpiration, selectors.Fill, req.Payment.CardExpiration, e.opts.Timeouts.Field); err != nil {
		month, year, ok := splitExpiration(req.Payment.CardExpiration)
		if !ok {
			e.log.Warn("expiration field not found", zap.Error(err))
		} else {
			e.fillField(p, "expiration month", s.ExpMonth, month)
			e.fillField(p, "expiration year", s.ExpYear, year)
		}
	}

	e.fillField(p, "card cvv", s.CardCVV, req.Payment.CardCVV)
	if req.BillingDiffers() {
		e.fillField(p, "billing address", s.BillingAddress, req.BillingAddress)
	}
}

func splitExpiration(exp string) (string, string, bool) {
	parts := strings.Split(exp, "/")
	if len(parts) != 2 {
		return "", "", false
	}
	month, year := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if month == "" || year == "" {
		return "", "", false
	}
	return month, year, true
}

func (e *Executor) awaitConfirmation(p browser.Page) Outcome {
	c := e.opts.Selectors.Confirmation
	t := e.opts.Timeouts
	e.log.Info("waiting for order confirmation")
	if text, err := p.InnerText(c.Element, t.Confirmation); err == nil {
		if text == "" {
			text = "Order confirmed"
		}
		return Outcome{Confirmation: text, Confirmed: true}
	}
	for _, ct := range c.Texts {
		if err := p.WaitFor(ct.Text, t.ConfirmationText); err == nil {
			return Outcome{Confirmation: ct.Message, Confirmed: true}
		}
	}
	e.log.Warn("order confirmation not detected")
	return Outcome{}
}
