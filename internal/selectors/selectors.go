package selectors

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Action string

const (
	Fill   Action = "fill"
	Click  Action = "click"
	Select Action = "select"
)

// Target is one candidate locator and the action to perform on it. An empty
// Action means the default action of the chain it sits in.
type Target struct {
	Selector string
	Action   Action
}

func (t Target) String() string {
	if t.Action == "" {
		return t.Selector
	}
	return string(t.Action) + ":" + t.Selector
}

// UnmarshalYAML accepts either a bare selector string or a one-key mapping
// such as {select: "#state"}.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t.Selector = node.Value
		t.Action = ""
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: target mapping needs exactly one action", node.Line)
		}
		action := Action(node.Content[0].Value)
		switch action {
		case Fill, Click, Select:
		default:
			return fmt.Errorf("line %d: unknown action %q", node.Line, action)
		}
		t.Action = action
		t.Selector = node.Content[1].Value
		return nil
	default:
		return fmt.Errorf("line %d: target must be a string or mapping", node.Line)
	}
}

func (t Target) MarshalYAML() (any, error) {
	if t.Action == "" {
		return t.Selector, nil
	}
	return map[string]string{string(t.Action): t.Selector}, nil
}

// Chain is an ordered list of candidates tried until one succeeds.
type Chain []Target

func Of(selectors ...string) Chain {
	c := make(Chain, len(selectors))
	for i, s := range selectors {
		c[i] = Target{Selector: s}
	}
	return c
}

// Resolve returns the action to perform for t given the chain default.
func (t Target) Resolve(def Action) Action {
	if t.Action != "" {
		return t.Action
	}
	return def
}

type Search struct {
	Input   string `yaml:"input"`
	Results string `yaml:"results"`
}

type Variant struct {
	// Option is a format string receiving the option label.
	Option        string `yaml:"option"`
	StringTension Chain  `yaml:"string_tension"`
	CustomOption  Chain  `yaml:"custom_option"`
}

type Cart struct {
	AddToCart  Chain  `yaml:"add_to_cart"`
	ClosePopup string `yaml:"close_popup"`
	ViewCart   Chain  `yaml:"view_cart"`
	Checkout   Chain  `yaml:"checkout"`
}

type Shipping struct {
	FirstName  Chain `yaml:"first_name"`
	LastName   Chain `yaml:"last_name"`
	Email      Chain `yaml:"email"`
	Phone      Chain `yaml:"phone"`
	Address    Chain `yaml:"address"`
	City       Chain `yaml:"city"`
	State      Chain `yaml:"state"`
	PostalCode Chain `yaml:"postal_code"`
	Country    Chain `yaml:"country"`
}

type Extras struct {
	CouponCode  Chain `yaml:"coupon_code"`
	ApplyCoupon Chain `yaml:"apply_coupon"`
	// ShippingOption is a format string receiving the option label.
	ShippingOption string `yaml:"shipping_option"`
	GiftWrap       Chain  `yaml:"gift_wrap"`
	GiftMessage    Chain  `yaml:"gift_message"`
}

type Payment struct {
	Continue       Chain `yaml:"continue"`
	CardNumber     Chain `yaml:"card_number"`
	CardExpiration Chain `yaml:"card_expiration"`
	ExpMonth       Chain `yaml:"exp_month"`
	ExpYear        Chain `yaml:"exp_year"`
	CardCVV        Chain `yaml:"card_cvv"`
	BillingAddress Chain `yaml:"billing_address"`
	PlaceOrder     Chain `yaml:"place_order"`
}

// ConfirmationText maps a page text to the message reported when it shows up.
type ConfirmationText struct {
	Text    string `yaml:"text"`
	Message string `yaml:"message"`
}

type Confirmation struct {
	Element string             `yaml:"element"`
	Texts   []ConfirmationText `yaml:"texts"`
}

// Catalog is the DOM contract with the target retailer.
type Catalog struct {
	Search       Search       `yaml:"search"`
	Variant      Variant      `yaml:"variant"`
	Cart         Cart         `yaml:"cart"`
	Shipping     Shipping     `yaml:"shipping"`
	Extras       Extras       `yaml:"extras"`
	Payment      Payment      `yaml:"payment"`
	Confirmation Confirmation `yaml:"confirmation"`
}

func Default() Catalog {
	return Catalog{
		Search: Search{
			Input:   `input[name="search"]`,
			Results: `div.product-container a.product-link`,
		},
		Variant: Variant{
			Option:        `text="%s"`,
			StringTension: Of(`input[name="string_tension"]`),
			CustomOption:  Of(`input[name="customOption"]`),
		},
		Cart: Cart{
			AddToCart:  Of(`#addToCartButton`, `button:has-text("Add to Cart")`),
			ClosePopup: `button.close-popup`,
			ViewCart:   Of(`a[href*="ViewCart"]`, `a:has-text("Cart")`),
			Checkout:   Of(`a[href*="Checkout"]`, `button:has-text("Checkout")`),
		},
		Shipping: Shipping{
			FirstName: Of(`#firstName`, `input[name="firstName"]`, `[placeholder="First Name"]`),
			LastName:  Of(`#lastName`, `input[name="lastName"]`, `[placeholder="Last Name"]`),
			Email:     Of(`#email`, `input[name="email"]`, `[placeholder="Email"]`),
			Phone:     Of(`#phone`, `input[name="phone"]`, `[placeholder="Phone"]`),
			Address:   Of(`#address`, `input[name="address"]`, `[placeholder="Address"]`),
			City:      Of(`#city`, `input[name="city"]`, `[placeholder="City"]`),
			State: Chain{
				{Selector: `#state`, Action: Select},
				{Selector: `#state`, Action: Fill},
				{Selector: `select[name="state"]`, Action: Select},
				{Selector: `input[name="state"]`, Action: Fill},
			},
			PostalCode: Of(`#zip`, `input[name="zip"]`, `#postal_code`, `input[name="postal_code"]`),
			Country: Chain{
				{Selector: `#country`, Action: Select},
				{Selector: `select[name="country"]`, Action: Select},
			},
		},
		Extras: Extras{
			CouponCode:     Of(`#couponCode`, `input[name="couponCode"]`),
			ApplyCoupon:    Of(`#applyCoupon`, `button:has-text("Apply")`),
			ShippingOption: `text="%s"`,
			GiftWrap:       Of(`input[name="giftWrap"]`),
			GiftMessage:    Of(`textarea[name="giftMessage"]`),
		},
		Payment: Payment{
			Continue:       Of(`#continueToPayment`, `button:has-text("Continue to Payment")`, `button:has-text("Next")`),
			CardNumber:     Of(`#cardNumber`, `input[name="cardNumber"]`, `[placeholder="Card Number"]`),
			CardExpiration: Of(`#cardExp`, `input[name="cardExp"]`, `[placeholder="MM/YY"]`),
			ExpMonth:       Of(`#expMonth`),
			ExpYear:        Of(`#expYear`),
			CardCVV:        Of(`#cardCVV`, `input[name="cardCVV"]`, `[placeholder="CVV"]`),
			BillingAddress: Of(`#billingAddress`, `input[name="billingAddress"]`),
			PlaceOrder:     Of(`#placeOrderButton`, `button:has-text("Place Order")`, `button:has-text("Complete Purchase")`),
		},
		Confirmation: Confirmation{
			Element: `.order-confirmation`,
			Texts: []ConfirmationText{
				{Text: `text="Thank you for your order"`, Message: "Order placed successfully"},
				{Text: `text="Order Confirmation"`, Message: "Order confirmed"},
			},
		},
	}
}

// Option renders a text locator for a variant or shipping label.
func Option(format, label string) string {
	escaped := strings.ReplaceAll(label, `"`, `\"`)
	return fmt.Sprintf(format, escaped)
}

// Load overlays the YAML file at path on the default catalog. Sections and
// chains missing from the file keep their defaults.
func Load(path string) (Catalog, error) {
	cat := Default()
	if strings.TrimSpace(path) == "" {
		return cat, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	if err := yaml.Unmarshal(b, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cat, nil
}

func (c Catalog) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
