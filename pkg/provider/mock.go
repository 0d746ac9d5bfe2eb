package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider replays scripted results. It is used by tests and by the
// indicator's -demo mode.
type MockProvider struct {
	id      ProviderID
	mu      sync.Mutex
	script  []PollResult
	calls   int
	latency time.Duration
}

// NewMockProvider creates a mock provider that returns results in order and
// then repeats the last one.
func NewMockProvider(id string, results ...PollResult) *MockProvider {
	return &MockProvider{
		id:     ProviderID(id),
		script: results,
	}
}

// NewDemoProvider returns a mock that reports a fixed, plausible payload.
func NewDemoProvider() *MockProvider {
	reset := time.Now().Add(2*time.Hour + 17*time.Minute).UTC().Format(time.RFC3339)
	weekly := time.Now().Add(76 * time.Hour).UTC().Format(time.RFC3339)
	payload := fmt.Sprintf(`{"five_hour":{"utilization":37,"resets_at":%q},"seven_day":{"utilization":74,"resets_at":%q}}`, reset, weekly)
	m := NewMockProvider("demo", Success("demo", []byte(payload)))
	m.SetLatency(750 * time.Millisecond)
	return m
}

// SetLatency delays every Poll by d, or until the context is done.
func (p *MockProvider) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// Calls returns the number of Poll invocations so far.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *MockProvider) ID() ProviderID {
	return p.id
}

func (p *MockProvider) Poll(ctx context.Context) PollResult {
	p.mu.Lock()
	latency := p.latency
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return Failure(p.id, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
		case <-time.After(latency):
		}
	}

	if len(p.script) == 0 {
		return NotAttempted(p.id, ErrCredentialsMissing)
	}
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	result := p.script[idx]
	result.ProviderID = p.id
	result.Timestamp = time.Now()
	return result
}
