// Package sim provides scriptable in-memory sensor implementations. They
// back the dev environment, where no real peripherals are attached, and
// the service tests, which need deterministic sensor behavior.
package sim

import (
	"context"
	"sync"

	"github.com/hajjtech/mawkib/internal/mawkib/sensor"
)

// CardWriter records written payloads and can be scripted to fail.
type CardWriter struct {
	mu       sync.Mutex
	WriteErr error
	written  []string
}

func (w *CardWriter) WritePayload(ctx context.Context, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.WriteErr != nil {
		return w.WriteErr
	}
	w.written = append(w.written, payload)
	return nil
}

// Written returns a copy of all payloads written so far.
func (w *CardWriter) Written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.written))
	copy(out, w.written)
	return out
}

// Fingerprint returns queued match results in order, falling back to
// Default when the queue is empty. MatchCalls counts Match invocations so
// tests can assert the matcher was never consulted after a card failure.
type Fingerprint struct {
	mu        sync.Mutex
	queue     []sensor.MatchResult
	Default   sensor.MatchResult
	MatchErr  error
	EnrollErr error

	matchCalls int
	enrolled   map[int]bool
}

func (f *Fingerprint) QueueResult(res sensor.MatchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, res)
}

func (f *Fingerprint) MatchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matchCalls
}

// EnrolledSlots returns the slots currently holding a template.
func (f *Fingerprint) EnrolledSlots() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for slot, ok := range f.enrolled {
		if ok {
			out = append(out, slot)
		}
	}
	return out
}

func (f *Fingerprint) Enroll(ctx context.Context, templateRef int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnrollErr != nil {
		return f.EnrollErr
	}
	if f.enrolled == nil {
		f.enrolled = make(map[int]bool)
	}
	f.enrolled[templateRef] = true
	return nil
}

func (f *Fingerprint) Match(ctx context.Context, templateRef int) (sensor.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return sensor.MatchResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchCalls++
	if f.MatchErr != nil {
		return sensor.MatchResult{}, f.MatchErr
	}
	if len(f.queue) > 0 {
		res := f.queue[0]
		f.queue = f.queue[1:]
		if res.TemplateID == 0 {
			res.TemplateID = templateRef
		}
		return res, nil
	}
	res := f.Default
	if res.TemplateID == 0 {
		res.TemplateID = templateRef
	}
	return res, nil
}

func (f *Fingerprint) DeleteTemplate(ctx context.Context, templateRef int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enrolled != nil {
		delete(f.enrolled, templateRef)
	}
	return nil
}

// Camera returns queued counts in order; CaptureErr, when set, is
// returned for every capture instead.
type Camera struct {
	mu         sync.Mutex
	queue      []int
	Default    int
	CaptureErr error
}

func (c *Camera) QueueCounts(counts ...int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, counts...)
}

func (c *Camera) CaptureCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CaptureErr != nil {
		return 0, c.CaptureErr
	}
	if len(c.queue) > 0 {
		n := c.queue[0]
		c.queue = c.queue[1:]
		return n, nil
	}
	return c.Default, nil
}

// Door is a settable door-state sensor.
type Door struct {
	mu     sync.Mutex
	closed bool
	Err    error
}

func (d *Door) SetClosed(closed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = closed
}

func (d *Door) Closed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return false, d.Err
	}
	return d.closed, nil
}
