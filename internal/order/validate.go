package order

import "strings"

type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Missing required fields: " + strings.Join(e.Missing, ", ")
}

// RequiredFields lists the parameter keys that must be non-empty, in the
// order they are reported.
var RequiredFields = []string{
	"first_name", "last_name", "email", "phone",
	"address", "city", "state", "postal_code",
	"card_number", "card_expiration", "card_cvv",
}

// Validate checks the category first and then required-field presence. It
// never touches the network.
func (r Request) Validate() error {
	if _, err := ParseCategory(string(r.Category)); err != nil {
		return err
	}
	values := r.fieldValues()
	var missing []string
	for _, key := range RequiredFields {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

func (r Request) fieldValues() map[string]string {
	return map[string]string{
		"first_name":      r.Shopper.FirstName,
		"last_name":       r.Shopper.LastName,
		"email":           r.Shopper.Email,
		"phone":           r.Shopper.Phone,
		"address":         r.Shipping.Street,
		"city":            r.Shipping.City,
		"state":           r.Shipping.State,
		"postal_code":     r.Shipping.PostalCode,
		"card_number":     r.Payment.CardNumber,
		"card_expiration": r.Payment.CardExpiration,
		"card_cvv":        r.Payment.CardCVV,
	}
}
