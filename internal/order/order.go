package order

import (
	"fmt"
	"strings"
)

const (
	DefaultWebsiteURL = "https://www.tennisexpress.com/"
	DefaultCountry    = "United States"
)

type Category string

const (
	Racquet Category = "racquet"
	Garment Category = "garment"
	Shoes   Category = "shoes"
	Other   Category = "other"
)

var Categories = []Category{Racquet, Garment, Shoes, Other}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return c, &CategoryError{Value: string(c)}
}

type CategoryError struct {
	Value string
}

func (e *CategoryError) Error() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return fmt.Sprintf("Invalid category '%s'. Valid categories are: %s", e.Value, strings.Join(names, ", "))
}

// Variant keys understood by the flow.
const (
	VariantSize          = "size"
	VariantColor         = "color"
	VariantStringType    = "string_type"
	VariantStringName    = "string_name"
	VariantStringTension = "string_tension"
	VariantOption        = "option1"
)

type Shopper struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type Address struct {
	Street     string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Payment struct {
	CardNumber     string `json:"card_number"`
	CardExpiration string `json:"card_expiration"`
	CardCVV        string `json:"card_cvv"`
}

// Request is everything one purchase attempt needs. It is built once by a
// collector and passed by value afterwards.
type Request struct {
	WebsiteURL     string            `json:"website_url"`
	ItemName       string            `json:"item_name"`
	Category       Category          `json:"category"`
	Variant        map[string]string `json:"variant_details,omitempty"`
	Shopper        Shopper           `json:"shopper"`
	Shipping       Address           `json:"shipping"`
	Payment        Payment           `json:"payment"`
	BillingAddress string            `json:"billing_address"`
	CouponCode     string            `json:"coupon_code,omitempty"`
	ShippingOption string            `json:"shipping_option,omitempty"`
	GiftMessage    string            `json:"gift_wrapping_message,omitempty"`
}

// VariantValue returns the trimmed variant value for key, or "".
func (r Request) VariantValue(key string) string {
	if r.Variant == nil {
		return ""
	}
	return strings.TrimSpace(r.Variant[key])
}

func (r Request) BillingDiffers() bool {
	return r.BillingAddress != "" && r.BillingAddress != r.Shipping.Street
}

// ApplyDefaults fills the website, country and billing address when unset.
func (r *Request) ApplyDefaults() {
	if strings.TrimSpace(r.WebsiteURL) == "" {
		r.WebsiteURL = DefaultWebsiteURL
	}
	if strings.TrimSpace(r.Shipping.Country) == "" {
		r.Shipping.Country = DefaultCountry
	}
	if strings.TrimSpace(r.BillingAddress) == "" {
		r.BillingAddress = r.Shipping.Street
	}
}

// Redacted masks payment credentials so the request can be logged.
func (r Request) Redacted() Request {
	r.Payment.CardNumber = mask(r.Payment.CardNumber, 4)
	r.Payment.CardCVV = mask(r.Payment.CardCVV, 0)
	return r
}

func mask(s string, keep int) string {
	if s == "" {
		return ""
	}
	if keep <= 0 || len(s) <= keep {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keep) + s[len(s)-keep:]
}

// Result is what a caller gets back from one purchase attempt.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
