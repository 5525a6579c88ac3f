package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickjm/shopbot/internal/flow"
	"github.com/patrickjm/shopbot/internal/order"
)

func fullParams() map[string]any {
	return map[string]any{
		"item_name":       "  Babolat Pure Aero ",
		"category":        "Racquet",
		"variant_details": `{"size":"27in","string_type":"polyester","string_tension":"55 lbs"}`,
		"first_name":      "Ada",
		"last_name":       "Lovelace",
		"email":           "ada@example.com",
		"phone":           5550100.0,
		"address":         "1 Court Rd",
		"city":            "Austin",
		"state":           "TX",
		"postal_code":     73301,
		"card_number":     "4111111111111111",
		"card_expiration": "12/30",
		"card_cvv":        "123",
		"coupon_code":     nil,
	}
}

func TestParamsCollect(t *testing.T) {
	req, err := Params{Values: fullParams()}.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "babolat pure aero", req.ItemName)
	assert.Equal(t, order.Racquet, req.Category)
	assert.Equal(t, order.DefaultWebsiteURL, req.WebsiteURL)
	assert.Equal(t, order.DefaultCountry, req.Shipping.Country)
	assert.Equal(t, "1 Court Rd", req.BillingAddress)
	assert.Equal(t, "5550100", req.Shopper.Phone)
	assert.Equal(t, "73301", req.Shipping.PostalCode)
	assert.Equal(t, "", req.CouponCode)
	assert.Equal(t, map[string]string{"size": "27in", "string_type": "polyester", "string_tension": "55 lbs"}, req.Variant)
}

func TestParamsInvalidCategory(t *testing.T) {
	params := fullParams()
	params["category"] = "balls"
	params["email"] = ""
	_, err := Params{Values: params}.Collect(context.Background())
	var catErr *order.CategoryError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, "balls", catErr.Value)
}

func TestParamsNumericCardKeepsDigits(t *testing.T) {
	params := fullParams()
	params["card_number"] = json.Number("6011000990139424123")
	req, err := Params{Values: params}.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "6011000990139424123", req.Payment.CardNumber)
}

func TestParamsMissingFields(t *testing.T) {
	params := fullParams()
	delete(params, "first_name")
	params["card_cvv"] = "   "
	_, err := Params{Values: params}.Collect(context.Background())
	var vErr *order.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"first_name", "card_cvv"}, vErr.Missing)
}

func TestParamsDefaultsFillGaps(t *testing.T) {
	params := fullParams()
	delete(params, "first_name")
	params["city"] = "Dallas"
	defaults := map[string]string{"first_name": "Grace", "city": "Houston", "country": "Canada"}
	req, err := Params{Values: params, Defaults: defaults}.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Grace", req.Shopper.FirstName)
	assert.Equal(t, "Dallas", req.Shipping.City, "explicit parameter wins")
	assert.Equal(t, "Canada", req.Shipping.Country)
}

func TestVariantDetailsShapes(t *testing.T) {
	v, err := variantDetails(map[string]any{"size": "M", "color": nil, "extra": 9.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"size": "M", "extra": "9"}, v)

	v, err = variantDetails("")
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = variantDetails(`{"grip": 4, "sku": 12345678901234567890}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"grip": "4", "sku": "12345678901234567890"}, v)

	_, err = variantDetails("size=M")
	assert.Error(t, err)

	_, err = variantDetails([]string{"M"})
	assert.Error(t, err)
}

var racquetAnswers = []string{
	"",                  // website url -> default
	"Babolat Pure Aero", // item
	"balls",             // invalid category
	"racquet",           // category
	"27in", "Polyester", "Luxilon Alu Power 125", "55 lbs",
	"Ada", "Lovelace", "ada@example.com", "555-0100",
	"1 Court Rd", "Austin", "TX", "73301", "",
	"4111111111111111", "12/30", "123",
	"",                  // billing -> shipping
	"yes", "SPRING10", // coupon
	"no",                    // shipping option
	"y", "Happy birthday", // gift wrap
}

func TestPromptCollect(t *testing.T) {
	in := strings.NewReader(strings.Join(racquetAnswers, "\n") + "\n")
	var out bytes.Buffer
	p := NewPrompt(in, &out)

	req, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, order.DefaultWebsiteURL, req.WebsiteURL)
	assert.Equal(t, "babolat pure aero", req.ItemName)
	assert.Equal(t, order.Racquet, req.Category)
	assert.Equal(t, "polyester", req.Variant[order.VariantStringType])
	assert.Equal(t, "Luxilon Alu Power 125", req.Variant[order.VariantStringName])
	assert.Equal(t, order.DefaultCountry, req.Shipping.Country)
	assert.Equal(t, "4111111111111111", req.Payment.CardNumber)
	assert.Equal(t, "123", req.Payment.CardCVV)
	assert.Equal(t, "1 Court Rd", req.BillingAddress)
	assert.Equal(t, "SPRING10", req.CouponCode)
	assert.Equal(t, "", req.ShippingOption)
	assert.Equal(t, "Happy birthday", req.GiftMessage)
	assert.Contains(t, out.String(), "Invalid category. Please enter a valid category")
}

func TestPromptSecretsUseMaskedReader(t *testing.T) {
	in := strings.NewReader(strings.Join(racquetAnswers, "\n") + "\n")
	p := NewPrompt(in, &bytes.Buffer{})
	secrets := []string{"5555444433331111", "999"}
	var calls int
	p.ReadSecret = func() (string, error) {
		s := secrets[calls]
		calls++
		// consume the echoed line the scripted input still carries
		_, _ = p.readLine()
		return s, nil
	}
	req, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "5555444433331111", req.Payment.CardNumber)
	assert.Equal(t, "999", req.Payment.CardCVV)
}

func TestPromptInputClosed(t *testing.T) {
	p := NewPrompt(strings.NewReader("https://shop.test/\nracquet name\n"), &bytes.Buffer{})
	_, err := p.Collect(context.Background())
	assert.True(t, errors.Is(err, ErrInputClosed))
}

func TestPromptChoose(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompt(strings.NewReader("abc\n7\n2\n"), &out)
	choice, err := p.Choose("pure aero", []string{"Pure Aero Team", "Pure Aero Lite"})
	require.NoError(t, err)
	assert.Equal(t, flow.Choice{Index: 1}, choice)
	assert.Contains(t, out.String(), "1. Pure Aero Team")
	assert.Contains(t, out.String(), "Invalid input. Please try again.")
	assert.Contains(t, out.String(), "Invalid selection. Please try again.")
}

func TestPromptChooseSearchAgain(t *testing.T) {
	p := NewPrompt(strings.NewReader("\nPure Drive\n"), &bytes.Buffer{})
	choice, err := p.Choose("pure aero", []string{"Pure Aero Team"})
	require.NoError(t, err)
	assert.Equal(t, flow.Choice{Query: "pure drive"}, choice)
}

func TestPromptRequeryKeepsQueryOnEmpty(t *testing.T) {
	p := NewPrompt(strings.NewReader("\n"), &bytes.Buffer{})
	q, err := p.Requery("pure aero")
	require.NoError(t, err)
	assert.Equal(t, "pure aero", q)
}
