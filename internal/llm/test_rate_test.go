package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmclient "guardian/internal/llmClient"
)

// fast fake client that returns immediately
type fastClient struct{}

func (f *fastClient) Name() string { return "fast" }
func (f *fastClient) Close() error { return nil }
func (f *fastClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "ok", nil
}

// flaky fails the first n calls with err
type flaky struct {
	fails int32
	err   error
	calls int32
}

func (f *flaky) Name() string { return "flaky" }
func (f *flaky) Close() error { return nil }
func (f *flaky) GenerateText(ctx context.Context, prompt string) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.fails {
		return "", f.err
	}
	return "done", nil
}

func TestRate_RPS_2PerSecond_Burst1_Spacing(t *testing.T) {
	cli := Wrap(&fastClient{}, RateLimit(2, 1))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	_, err := cli.GenerateText(ctx, "p")
	require.NoError(t, err)
	_, err = cli.GenerateText(ctx, "p")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 450*time.Millisecond)
}

func TestRate_Burst2_FirstTwoImmediate(t *testing.T) {
	cli := RateLimit(2, 2)(&fastClient{})
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := cli.GenerateText(ctx, "p")
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestRate_Disabled(t *testing.T) {
	cli := RateLimit(0, 0)(&fastClient{})
	start := time.Now()
	for i := 0; i < 20; i++ {
		_, err := cli.GenerateText(context.Background(), "p")
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	require.NoError(t, cli.Close())
}

func TestRate_CanceledContext(t *testing.T) {
	cli := RateLimit(0.5, 1)(&fastClient{})
	t.Cleanup(func() { _ = cli.Close() })
	_, err := cli.GenerateText(context.Background(), "p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = cli.GenerateText(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetry_RecoversFromTransient(t *testing.T) {
	inner := &flaky{fails: 2, err: errors.New("503")}
	cli := Wrap(inner, Retry(3, time.Millisecond))

	out, err := cli.GenerateText(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
}

func TestRetry_GivesUp(t *testing.T) {
	boom := errors.New("503")
	inner := &flaky{fails: 10, err: boom}
	cli := Wrap(inner, Retry(2, time.Millisecond))

	_, err := cli.GenerateText(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	inner := &flaky{fails: 10, err: llmclient.NewPermanentError(errors.New("bad key"))}
	cli := Wrap(inner, Retry(5, time.Millisecond))

	_, err := cli.GenerateText(context.Background(), "p")
	assert.True(t, llmclient.IsPermanent(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestFakeClient_RulesAndCalls(t *testing.T) {
	f := NewFakeClient("[]", FakeRule{Contains: "refined_patterns", Reply: `{"refined_patterns":[]}`})
	cli := Wrap(f, WithLogging(nil))

	out, err := cli.GenerateText(WithPhase(context.Background(), "refine"), "give refined_patterns")
	require.NoError(t, err)
	assert.Equal(t, `{"refined_patterns":[]}`, out)

	out, err = cli.GenerateText(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Len(t, f.Calls(), 2)
	assert.Equal(t, 1, f.CallsContaining("refined"))
}

func TestPhaseFrom_Default(t *testing.T) {
	assert.Equal(t, "unknown", PhaseFrom(context.Background()))
	assert.Equal(t, "pass1", PhaseFrom(WithPhase(context.Background(), "pass1")))
}
