package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedClient struct {
	results []scriptedResult
	keys    []string
}

type scriptedResult struct {
	text string
	err  error
}

func (c *scriptedClient) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	c.keys = append(c.keys, apiKey)
	if len(c.results) == 0 {
		return "", errors.New("script exhausted")
	}
	next := c.results[0]
	c.results = c.results[1:]
	return next.text, next.err
}

func newTestGateway(client Client) (*Gateway, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	g := NewGateway(client)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return g, sleeps
}

func overloaded() error {
	return &ProviderError{Kind: KindOverloaded, Status: 503, Detail: "model overloaded"}
}

func quota() error {
	return &ProviderError{Kind: KindQuotaExceeded, Status: 429, Detail: "quota exceeded"}
}

func TestGatewaySuccessFirstAttempt(t *testing.T) {
	client := &scriptedClient{results: []scriptedResult{{text: "done"}}}
	g, sleeps := newTestGateway(client)

	got, err := g.Invoke(context.Background(), InvokeRequest{Prompt: "p", PrimaryKey: "primary"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "done" {
		t.Fatalf("expected done, got %q", got)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("expected no sleeps, got %v", *sleeps)
	}
	if len(client.keys) != 1 || client.keys[0] != "primary" {
		t.Fatalf("expected one primary call, got %v", client.keys)
	}
}

func TestGatewayQuotaSwitchesToFallbackImmediately(t *testing.T) {
	client := &scriptedClient{results: []scriptedResult{
		{err: quota()},
		{text: "done"},
	}}
	g, sleeps := newTestGateway(client)

	got, err := g.Invoke(context.Background(), InvokeRequest{
		Prompt: "p", PrimaryKey: "primary", FallbackKey: "fallback",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "done" {
		t.Fatalf("expected done, got %q", got)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("switch must not back off, got sleeps %v", *sleeps)
	}
	want := []string{"primary", "fallback"}
	if len(client.keys) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, client.keys)
	}
	for i := range want {
		if client.keys[i] != want[i] {
			t.Fatalf("call %d: expected key %s, got %s", i, want[i], client.keys[i])
		}
	}
}

func TestGatewayQuotaWithoutFallbackFails(t *testing.T) {
	client := &scriptedClient{results: []scriptedResult{{err: quota()}}}
	g, sleeps := newTestGateway(client)

	_, err := g.Invoke(context.Background(), InvokeRequest{Prompt: "p", PrimaryKey: "primary"})
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindQuotaExceeded {
		t.Fatalf("expected quota error, got %v", err)
	}
	if len(client.keys) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(client.keys))
	}
	if len(*sleeps) != 0 {
		t.Fatalf("expected no sleeps, got %v", *sleeps)
	}
}

func TestGatewayOverloadedBacksOffExponentially(t *testing.T) {
	client := &scriptedClient{results: []scriptedResult{
		{err: overloaded()},
		{err: overloaded()},
		{text: "done"},
	}}
	g, sleeps := newTestGateway(client)

	got, err := g.Invoke(context.Background(), InvokeRequest{Prompt: "p", PrimaryKey: "primary"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "done" {
		t.Fatalf("expected done, got %q", got)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected sleeps %v, got %v", want, *sleeps)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Fatalf("sleep %d: expected %s, got %s", i, want[i], (*sleeps)[i])
		}
	}
}

func TestGatewayOverloadedSwitchesAfterSecondAttempt(t *testing.T) {
	client := &scriptedClient{results: []scriptedResult{
		{err: overloaded()},
		{err: overloaded()},
		{text: "done"},
	}}
	g, sleeps := newTestGateway(client)

	_, err := g.Invoke(context.Background(), InvokeRequest{
		Prompt: "p", PrimaryKey: "primary", FallbackKey: "fallback",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want := []string{"primary", "primary", "fallback"}
	for i := range want {
		if client.keys[i] != want[i] {
			t.Fatalf("call %d: expected key %s, got %s", i, want[i], client.keys[i])
		}
	}
	// Only the first overload backs off; the switch retries immediately.
	if len(*sleeps) != 1 || (*sleeps)[0] != 2*time.Second {
		t.Fatalf("expected a single 2s sleep, got %v", *sleeps)
	}
}

func TestGatewayExhaustsAttempts(t *testing.T) {
	client := &scriptedClient{results: []scriptedResult{
		{err: overloaded()},
		{err: overloaded()},
		{err: overloaded()},
	}}
	g, sleeps := newTestGateway(client)

	_, err := g.Invoke(context.Background(), InvokeRequest{Prompt: "p", PrimaryKey: "primary"})
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindOverloaded {
		t.Fatalf("expected overloaded error, got %v", err)
	}
	if len(client.keys) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(client.keys))
	}
	if len(*sleeps) != 2 {
		t.Fatalf("expected 2 sleeps, got %v", *sleeps)
	}
}

func TestGatewayFatalFailsImmediately(t *testing.T) {
	client := &scriptedClient{results: []scriptedResult{
		{err: &ProviderError{Kind: KindFatal, Status: 401, Detail: "bad credential"}},
	}}
	g, sleeps := newTestGateway(client)

	_, err := g.Invoke(context.Background(), InvokeRequest{
		Prompt: "p", PrimaryKey: "primary", FallbackKey: "fallback",
	})
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindFatal {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if len(client.keys) != 1 {
		t.Fatalf("fatal must not retry, got %d attempts", len(client.keys))
	}
	if len(*sleeps) != 0 {
		t.Fatalf("expected no sleeps, got %v", *sleeps)
	}
}

func TestGatewaySleepHonorsContext(t *testing.T) {
	client := &scriptedClient{results: []scriptedResult{
		{err: overloaded()},
		{text: "done"},
	}}
	g := NewGateway(client)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Invoke(ctx, InvokeRequest{Prompt: "p", PrimaryKey: "primary"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyUnknownErrorIsFatal(t *testing.T) {
	if kind := Classify(errors.New("boom")); kind != KindFatal {
		t.Fatalf("expected fatal, got %s", kind)
	}
	if kind := Classify(context.DeadlineExceeded); kind != KindOverloaded {
		t.Fatalf("expected overloaded for deadline, got %s", kind)
	}
}
