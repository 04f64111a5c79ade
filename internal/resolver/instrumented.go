package resolver

import (
	"context"

	"github.com/italolelis/downtube/internal/telemetry"
)

// InstrumentedResolver wraps a Resolver with telemetry.
type InstrumentedResolver struct {
	resolver  Resolver
	telemetry *telemetry.Telemetry
}

func NewInstrumentedResolver(r Resolver, tel *telemetry.Telemetry) *InstrumentedResolver {
	return &InstrumentedResolver{resolver: r, telemetry: tel}
}

func (r *InstrumentedResolver) Resolve(ctx context.Context, sourceURL string) (Result, error) {
	var result Result

	err := r.telemetry.InstrumentResolution(ctx, func(ctx context.Context) error {
		var err error

		result, err = r.resolver.Resolve(ctx, sourceURL)

		return err
	})

	return result, err
}
