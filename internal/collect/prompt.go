package collect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/patrickjm/shopbot/internal/flow"
	"github.com/patrickjm/shopbot/internal/order"
)

// ErrInputClosed is returned when the operator's input ends mid-collection.
var ErrInputClosed = errors.New("input closed")

// Prompt asks the operator for every field in turn. It also answers the
// flow's product disambiguation questions.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
	// ReadSecret reads a credential without echo.
	ReadSecret func() (string, error)
	Defaults   map[string]string
	WebsiteURL string
}

var _ flow.Chooser = (*Prompt)(nil)

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	p := &Prompt{in: bufio.NewReader(in), out: out, WebsiteURL: order.DefaultWebsiteURL}
	p.ReadSecret = p.readLine
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.ReadSecret = func() (string, error) {
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}
	}
	return p
}

func (p *Prompt) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrInputClosed
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ask prints label and returns the answer, or def when the answer is empty.
func (p *Prompt) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (p *Prompt) secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	return p.ReadSecret()
}

func (p *Prompt) yes(label string) (bool, error) {
	answer, err := p.ask(label+" (yes/no)", "")
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(answer), "y"), nil
}

// fieldReader threads the first error through a sequence of prompts.
type fieldReader struct {
	p   *Prompt
	err error
}

func (r *fieldReader) ask(label, key string) string {
	return r.askDefault(label, r.p.Defaults[key])
}

func (r *fieldReader) askDefault(label, def string) string {
	if r.err != nil {
		return ""
	}
	var v string
	v, r.err = r.p.ask(label, def)
	return v
}

func (r *fieldReader) secret(label string) string {
	if r.err != nil {
		return ""
	}
	var v string
	v, r.err = r.p.secret(label)
	return v
}

func (r *fieldReader) optional(question, label string) string {
	if r.err != nil {
		return ""
	}
	var ok bool
	if ok, r.err = r.p.yes(question); r.err != nil || !ok {
		return ""
	}
	var v string
	v, r.err = r.p.ask(label, "")
	return v
}

func (p *Prompt) Collect(ctx context.Context) (order.Request, error) {
	var req order.Request
	r := &fieldReader{p: p}

	req.WebsiteURL = r.askDefault("Website URL", withDefault(p.Defaults["website_url"], p.WebsiteURL))
	req.ItemName = strings.ToLower(r.ask("Exact product name", "item_name"))
	if r.err != nil {
		return order.Request{}, r.err
	}

	category, err := p.category()
	if err != nil {
		return order.Request{}, err
	}
	req.Category = category
	if req.Variant, err = p.variant(category); err != nil {
		return order.Request{}, err
	}
	if err := ctx.Err(); err != nil {
		return order.Request{}, err
	}

	req.Shopper = order.Shopper{
		FirstName: r.ask("First Name", "first_name"),
		LastName:  r.ask("Last Name", "last_name"),
		Email:     r.ask("Email (for shipping and confirmation)", "email"),
		Phone:     r.ask("Phone Number", "phone"),
	}
	req.Shipping = order.Address{
		Street:     r.ask("Street Address", "address"),
		City:       r.ask("City", "city"),
		State:      r.ask("State (abbreviation or full name)", "state"),
		PostalCode: r.ask("Zip/Postal Code", "postal_code"),
		Country:    r.askDefault("Country", withDefault(p.Defaults["country"], order.DefaultCountry)),
	}
	req.Payment = order.Payment{
		CardNumber:     r.secret("Credit Card Number (use test card if demo)"),
		CardExpiration: r.ask("Card Expiration Date (MM/YY)", "card_expiration"),
		CardCVV:        r.secret("Card CVV"),
	}
	req.BillingAddress = r.ask("Billing Address (press Enter to use shipping address)", "billing_address")
	req.CouponCode = r.optional("Do you have a coupon code?", "Coupon code")
	req.ShippingOption = r.optional("Do you want to select a different shipping option?", "Shipping option (e.g. 'expedited', 'in-store pickup')")
	req.GiftMessage = r.optional("Do you want to add gift wrapping?", "Gift wrapping message")
	if r.err != nil {
		return order.Request{}, r.err
	}

	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return order.Request{}, err
	}
	return req, nil
}

func withDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// category re-prompts until the answer is a known category.
func (p *Prompt) category() (order.Category, error) {
	label := "Product category ('racquet', 'garment', 'shoes', 'other')"
	for {
		answer, err := p.ask(label, p.Defaults["category"])
		if err != nil {
			return "", err
		}
		c, err := order.ParseCategory(answer)
		if err == nil {
			return c, nil
		}
		label = "Invalid category. Please enter a valid category"
	}
}

func (p *Prompt) variant(c order.Category) (map[string]string, error) {
	v := map[string]string{}
	r := &fieldReader{p: p}
	set := func(key, value string) {
		if value != "" {
			v[key] = value
		}
	}
	switch c {
	case order.Racquet:
		set(order.VariantSize, r.ask("Desired size", ""))
		set(order.VariantStringType, strings.ToLower(r.ask("String type (e.g. 'polyester', 'multifilament')", "")))
		set(order.VariantStringName, r.ask("String name (e.g. 'Luxilon Alu Power 125')", ""))
		set(order.VariantStringTension, r.ask("String tension (e.g. '55 lbs')", ""))
	case order.Garment, order.Shoes:
		set(order.VariantSize, r.ask("Desired size (e.g. 'M' for garments or '9' for shoes)", ""))
		set(order.VariantColor, r.ask("Desired color (e.g. 'black', 'red', 'blue')", ""))
	default:
		set(order.VariantOption, r.optional("Does this product have any customizable options?", "Customization details"))
	}
	return v, r.err
}

// Choose lists the results and reads a 1-based pick. Empty input asks for a
// new product name instead. Bad input is re-prompted here so it never costs
// a search attempt.
func (p *Prompt) Choose(query string, titles []string) (flow.Choice, error) {
	fmt.Fprintln(p.out, "No exact match found. Please choose from the following options:")
	for i, title := range titles {
		if title == "" {
			title = fmt.Sprintf("Product %d", i+1)
		}
		fmt.Fprintf(p.out, "%d. %s\n", i+1, title)
	}
	for {
		fmt.Fprint(p.out, "Enter the number of the product you want, or press Enter to search again: ")
		answer, err := p.readLine()
		if err != nil {
			return flow.Choice{}, err
		}
		if answer == "" {
			next, err := p.Requery(query)
			if err != nil {
				return flow.Choice{}, err
			}
			return flow.Choice{Query: next}, nil
		}
		n, err := strconv.Atoi(answer)
		if err != nil {
			fmt.Fprintln(p.out, "Invalid input. Please try again.")
			continue
		}
		if n < 1 || n > len(titles) {
			fmt.Fprintln(p.out, "Invalid selection. Please try again.")
			continue
		}
		return flow.Choice{Index: n - 1}, nil
	}
}

func (p *Prompt) Requery(query string) (string, error) {
	fmt.Fprint(p.out, "Enter a new product name: ")
	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return query, nil
	}
	return strings.ToLower(answer), nil
}
