package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/patrickjm/shopbot/internal/order"
)

// Params coerces a loosely typed parameter map, as sent by a plugin host,
// into a request. Defaults seed values the caller left out.
type Params struct {
	Values   map[string]any
	Defaults map[string]string
}

func (c Params) Collect(ctx context.Context) (order.Request, error) {
	if err := ctx.Err(); err != nil {
		return order.Request{}, err
	}
	get := func(key string) string {
		if v, ok := c.Values[key]; ok && v != nil {
			if s := strings.TrimSpace(stringify(v)); s != "" {
				return s
			}
		}
		return strings.TrimSpace(c.Defaults[key])
	}

	req := order.Request{
		WebsiteURL: get("website_url"),
		ItemName:   strings.ToLower(get("item_name")),
		Category:   order.Category(strings.ToLower(get("category"))),
		Shopper: order.Shopper{
			FirstName: get("first_name"),
			LastName:  get("last_name"),
			Email:     get("email"),
			Phone:     get("phone"),
		},
		Shipping: order.Address{
			Street:     get("address"),
			City:       get("city"),
			State:      get("state"),
			PostalCode: get("postal_code"),
			Country:    get("country"),
		},
		Payment: order.Payment{
			CardNumber:     get("card_number"),
			CardExpiration: get("card_expiration"),
			CardCVV:        get("card_cvv"),
		},
		BillingAddress: get("billing_address"),
		CouponCode:     get("coupon_code"),
		ShippingOption: get("shipping_option"),
		GiftMessage:    get("gift_wrapping_message"),
	}
	req.ApplyDefaults()

	if _, err := order.ParseCategory(string(req.Category)); err != nil {
		return order.Request{}, err
	}
	variant, err := variantDetails(c.Values["variant_details"])
	if err != nil {
		return order.Request{}, err
	}
	req.Variant = variant

	if err := req.Validate(); err != nil {
		return order.Request{}, err
	}
	return req, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		// JSON numbers decode as float64; keep integers free of exponents.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}

// variantDetails accepts a map or a JSON object encoded as a string, which is
// how most agent hosts pass nested values.
func variantDetails(v any) (map[string]string, error) {
	out := map[string]string{}
	switch t := v.(type) {
	case nil:
		return out, nil
	case map[string]string:
		for k, val := range t {
			if s := strings.TrimSpace(val); s != "" {
				out[k] = s
			}
		}
		return out, nil
	case map[string]any:
		for k, val := range t {
			if val == nil {
				continue
			}
			if s := strings.TrimSpace(stringify(val)); s != "" {
				out[k] = s
			}
		}
		return out, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return out, nil
		}
		var decoded map[string]any
		dec := json.NewDecoder(strings.NewReader(t))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("variant_details must be a JSON object: %w", err)
		}
		return variantDetails(decoded)
	default:
		return nil, fmt.Errorf("variant_details must be an object, got %T", v)
	}
}
