package tracer

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/baggage"

	"github.com/ppiankov/tapwire/internal/model"
)

// KeyAggregationID groups spans for billing aggregation.
const KeyAggregationID = model.Namespace + "_aggregation_id"

// WithTags returns a context whose spans carry tags as attributes under the
// tag prefix. Tags set on an outer context are kept unless overwritten.
func WithTags(ctx context.Context, tags map[string]string) (context.Context, error) {
	b := baggage.FromContext(ctx)
	for k, v := range tags {
		var err error
		if b, err = setMember(b, model.TagPrefix+k, v); err != nil {
			return ctx, err
		}
	}
	return baggage.ContextWithBaggage(ctx, b), nil
}

// WithAggregationID returns a context whose spans carry id.
func WithAggregationID(ctx context.Context, id string) (context.Context, error) {
	b, err := setMember(baggage.FromContext(ctx), KeyAggregationID, id)
	if err != nil {
		return ctx, err
	}
	return baggage.ContextWithBaggage(ctx, b), nil
}

// Tags returns the tags set on ctx, without the prefix.
func Tags(ctx context.Context) map[string]string {
	out := map[string]string{}
	for _, m := range baggage.FromContext(ctx).Members() {
		if k, ok := strings.CutPrefix(m.Key(), model.TagPrefix); ok {
			out[k] = m.Value()
		}
	}
	return out
}

func setMember(b baggage.Baggage, key, value string) (baggage.Baggage, error) {
	m, err := baggage.NewMemberRaw(key, value)
	if err != nil {
		return b, fmt.Errorf("invalid tag %q: %w", key, err)
	}
	return b.SetMember(m)
}

// baggageAttributes copies namespaced baggage members into attributes.
func baggageAttributes(ctx context.Context) model.Attributes {
	attrs := model.Attributes{}
	for _, m := range baggage.FromContext(ctx).Members() {
		if strings.HasPrefix(m.Key(), model.Namespace) {
			attrs[m.Key()] = m.Value()
		}
	}
	return attrs
}
