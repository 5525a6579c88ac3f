// Package plugin exposes the purchase flow as a tool that agent hosts invoke
// with a parameter map and that answers with a stream of messages.
package plugin

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/patrickjm/shopbot/internal/browser"
	"github.com/patrickjm/shopbot/internal/collect"
	"github.com/patrickjm/shopbot/internal/flow"
	"github.com/patrickjm/shopbot/internal/order"
)

const ToolName = "tennis_shopping_bot"

const (
	TextMessage = "text"
	JSONMessage = "json"
)

const startingMessage = "Starting purchase flow..."

// Message is one item of a tool response: either Text or a JSON result.
type Message struct {
	Type string        `json:"type"`
	Text string        `json:"text,omitempty"`
	JSON *order.Result `json:"json,omitempty"`
}

func Text(s string) Message {
	return Message{Type: TextMessage, Text: s}
}

func JSON(r order.Result) Message {
	return Message{Type: JSONMessage, JSON: &r}
}

type Runner interface {
	Run(ctx context.Context, req order.Request) (flow.Outcome, error)
}

type Parameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Tool runs one purchase per invocation. Concurrent invocations queue on the
// tool so only one browser is ever open.
type Tool struct {
	Runner Runner
	// Defaults seeds parameters the caller omitted, typically from a saved
	// shopper.
	Defaults map[string]string
	Logger   *zap.Logger

	mu sync.Mutex
}

func (t *Tool) Describe() Descriptor {
	params := []Parameter{
		{Name: "website_url", Type: "string"},
		{Name: "item_name", Type: "string", Required: true},
		{Name: "category", Type: "select", Required: true},
		{Name: "variant_details", Type: "object"},
	}
	for _, name := range order.RequiredFields {
		params = append(params, Parameter{Name: name, Type: "string", Required: true})
	}
	for _, name := range []string{"country", "billing_address", "coupon_code", "shipping_option", "gift_wrapping_message"} {
		params = append(params, Parameter{Name: name, Type: "string"})
	}
	return Descriptor{
		Name:        ToolName,
		Description: "Search the retailer for a product, pick its variant and place a guest order.",
		Parameters:  params,
	}
}

// Invoke validates params and runs the purchase, reporting through emit.
// Invalid input yields a single text message; otherwise a start notice is
// followed by exactly one JSON result. The returned error is only ever an
// emit failure.
func (t *Tool) Invoke(ctx context.Context, params map[string]any, emit func(Message) error) error {
	log := t.logger()
	req, err := collect.Params{Values: params, Defaults: t.Defaults}.Collect(ctx)
	if err != nil {
		log.Info("invocation rejected", zap.Error(err))
		return emit(Text(err.Error()))
	}
	if err := emit(Text(startingMessage)); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	log.Info("invocation accepted",
		zap.String("item", req.ItemName),
		zap.String("category", string(req.Category)),
		zap.String("card", req.Redacted().Payment.CardNumber))
	out, err := t.run(ctx, req)
	result := flow.Report(out, err)
	log.Info("invocation finished", zap.Bool("success", result.Success))
	return emit(JSON(result))
}

func (t *Tool) run(ctx context.Context, req order.Request) (out flow.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &browser.PanicError{Value: r}
		}
	}()
	return t.Runner.Run(ctx, req)
}

func (t *Tool) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger.Named("plugin")
}

// Collect runs Invoke and gathers the emitted messages.
func (t *Tool) Collect(ctx context.Context, params map[string]any) ([]Message, error) {
	var msgs []Message
	err := t.Invoke(ctx, params, func(m Message) error {
		msgs = append(msgs, m)
		return nil
	})
	return msgs, err
}
