package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/hajjtech/mawkib/internal/mawkib/metrics"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor"
)

// ErrInsufficientSamples is returned when a reconciliation window could
// not capture the minimum quorum of samples. The window reports an error
// rather than guessing from thin data.
var ErrInsufficientSamples = errors.New("insufficient headcount samples")

// Reconciler aggregates repeated person-count samples into one stable
// count. A single vision frame is noisy (occlusion, motion blur), so a
// window of samples is collected sequentially and reduced with a robust
// aggregator instead of trusting one reading.
type Reconciler struct {
	camera  sensor.Camera
	window  int // samples per reconciliation window
	quorum  int // minimum successful captures before aggregating
	logger  *log.Logger
	metrics *metrics.Metrics
}

func NewReconciler(camera sensor.Camera, window, quorum int, logger *log.Logger, m *metrics.Metrics) *Reconciler {
	if window <= 0 {
		window = 3
	}
	if quorum <= 0 || quorum > window {
		quorum = (window + 1) / 2
	}
	return &Reconciler{camera: camera, window: window, quorum: quorum, logger: logger, metrics: m}
}

// Reconciliation is the verdict of one sampling window.
type Reconciliation struct {
	Samples     []int // successful captures, in capture order
	StableCount int
	Matched     bool // StableCount == expected, exactly
}

// Reconcile runs one full sampling window against expected. Captures are
// strictly sequential so sample ordering is deterministic; a failed
// capture consumes its slot in the window but not the quorum.
//
// Matching is exact: over- or under-boarding is a safety condition, not
// a cosmetic one, so there is no fuzzy tolerance.
func (r *Reconciler) Reconcile(ctx context.Context, expected int) (Reconciliation, error) {
	samples := make([]int, 0, r.window)

	for i := 0; i < r.window; i++ {
		if err := ctx.Err(); err != nil {
			return Reconciliation{Samples: samples}, err
		}
		n, err := r.camera.CaptureCount(ctx)
		if err != nil {
			r.logger.Printf("headcount capture %d/%d failed: %v", i+1, r.window, err)
			continue
		}
		if n < 0 {
			r.logger.Printf("headcount capture %d/%d returned negative count %d, discarding", i+1, r.window, n)
			continue
		}
		samples = append(samples, n)
	}

	if len(samples) < r.quorum {
		r.metrics.HeadcountWindows.WithLabelValues("insufficient").Inc()
		return Reconciliation{Samples: samples},
			fmt.Errorf("%w: got %d of %d required", ErrInsufficientSamples, len(samples), r.quorum)
	}

	stable := Aggregate(samples)
	matched := stable == expected

	result := "mismatch"
	if matched {
		result = "matched"
	}
	r.metrics.HeadcountWindows.WithLabelValues(result).Inc()

	return Reconciliation{Samples: samples, StableCount: stable, Matched: matched}, nil
}

// Aggregate reduces a window of samples to a stable count: the strict
// mode when one exists, otherwise the median rounded to the nearest
// integer. Samples must be non-empty.
func Aggregate(samples []int) int {
	freq := make(map[int]int, len(samples))
	for _, n := range samples {
		freq[n]++
	}

	mode, best, ties := 0, 0, 0
	for n, c := range freq {
		switch {
		case c > best:
			mode, best, ties = n, c, 1
		case c == best:
			ties++
		}
	}
	// A strict mode needs an actual repeat and no tie for first place.
	if best > 1 && ties == 1 {
		return mode
	}

	sorted := make([]int, len(samples))
	copy(sorted, samples)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return int(math.Round(float64(sorted[mid-1]+sorted[mid]) / 2))
}
