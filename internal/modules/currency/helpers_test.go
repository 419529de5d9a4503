package currency

import (
	"context"
	"errors"
	"sync"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider serves rates[base][target] and counts calls
type fakeProvider struct {
	rates     map[string]map[string]float64
	err       error
	release   chan struct{}
	name      string
	requested [][]string
	calls     int
	mu        sync.Mutex
}

func newFakeProvider(name string, rates map[string]map[string]float64) *fakeProvider {
	return &fakeProvider{name: name, rates: rates}
}

func (p *fakeProvider) Name() string {
	return p.name
}

func (p *fakeProvider) FetchRates(ctx context.Context, base string, targets []string) (map[string]float64, error) {
	p.mu.Lock()
	p.calls++
	p.requested = append(p.requested, append([]string(nil), targets...))
	release := p.release
	err := p.err
	p.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, target := range targets {
		if rate, ok := p.rates[base][target]; ok {
			out[target] = rate
		}
	}
	if len(out) == 0 {
		return nil, errors.New("rate not found")
	}
	return out, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) Requested() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requested
}

func (p *fakeProvider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func newTestCache(clock *testClock) *RateCache {
	cache := NewRateCache(TTLExchangeRate)
	cache.now = clock.Now
	return cache
}
