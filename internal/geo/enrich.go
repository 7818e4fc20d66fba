package geo

import (
	"context"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Stats describes one enrichment pass.
type Stats struct {
	Addresses int           `json:"addresses"`
	Resolved  int           `json:"resolved"`
	Failed    int           `json:"failed"`
	P50       time.Duration `json:"p50"`
	P99       time.Duration `json:"p99"`
	Max       time.Duration `json:"max"`
}

// Enricher fills in Location on reconciled customers. Lookups run one at
// a time, at most one per delay.
type Enricher struct {
	geocoder Geocoder
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// NewEnricher creates an Enricher that waits delay between lookups.
func NewEnricher(g Geocoder, delay time.Duration, log zerolog.Logger) *Enricher {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Enricher{
		geocoder: g,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
	}
}

// Enrich geocodes every distinct address once and assigns the result to
// each customer living there. A failed lookup leaves Location nil; only
// context cancellation is returned as an error.
func (e *Enricher) Enrich(ctx context.Context, customers []domain.CustomerWithHistory) (Stats, error) {
	// Latencies in microseconds, up to one minute.
	histogram := hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)
	resolved := make(map[string]*domain.Coordinates)
	var stats Stats

	for _, c := range customers {
		if _, seen := resolved[c.Address]; seen {
			continue
		}
		stats.Addresses++

		if err := e.limiter.Wait(ctx); err != nil {
			return stats, err
		}

		start := time.Now()
		coords, err := e.geocoder.Lookup(ctx, c.Address)
		_ = histogram.RecordValue(time.Since(start).Microseconds())

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			e.log.Warn().Err(err).Str("address", c.Address).Msg("Geocoding failed")
		case coords == nil:
			stats.Failed++
			e.log.Warn().Str("address", c.Address).Msg("No geocoding results")
		default:
			stats.Resolved++
		}
		resolved[c.Address] = coords
	}

	for i := range customers {
		customers[i].Location = resolved[customers[i].Address]
	}

	if stats.Addresses > 0 {
		stats.P50 = time.Duration(histogram.ValueAtQuantile(50)) * time.Microsecond
		stats.P99 = time.Duration(histogram.ValueAtQuantile(99)) * time.Microsecond
		stats.Max = time.Duration(histogram.Max()) * time.Microsecond
	}

	e.log.Info().
		Int("addresses", stats.Addresses).
		Int("resolved", stats.Resolved).
		Int("failed", stats.Failed).
		Dur("p50", stats.P50).
		Dur("p99", stats.P99).
		Msg("Geocoding complete")

	return stats, nil
}
