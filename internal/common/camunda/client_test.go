package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"entitlement-workers/internal/common/config"
	apperrors "entitlement-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(maxRetries int) *Client {
	return &Client{config: &ClientConfig{
		ConnectionTimeout: time.Second,
		RetryConfig: &RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
		},
	}}
}

func TestExecuteWithRetry_RecoversFromTransientError(t *testing.T) {
	c := newTestClient(3)
	calls := 0

	res, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, stderrors.New("rpc error: code = Unavailable desc = connection refused")
		}
		return "ok", nil
	}, "topology")

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_DoesNotRetryPermanentError(t *testing.T) {
	c := newTestClient(3)
	calls := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, stderrors.New("rpc error: code = PermissionDenied desc = permission denied")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	stdErr, ok := apperrors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeAuthentication, stdErr.Code)
}

func TestExecuteWithRetry_ExhaustsRetries(t *testing.T) {
	c := newTestClient(2)
	calls := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, stderrors.New("context deadline exceeded")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	stdErr, ok := apperrors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTimeout, stdErr.Code)
	assert.Contains(t, stdErr.Details, "after 3 attempts")
}

func TestStartupRetryConfig_SingleLayerBudget(t *testing.T) {
	c := newTestClient(StartupRetryConfig.MaxRetries)
	calls := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, stderrors.New("rpc error: code = Unavailable desc = connection refused")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 10, calls)
	assert.Equal(t, 30*time.Second, StartupRetryConfig.MaxDelay)
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	c := newTestClient(5)
	c.config.RetryConfig.BaseDelay = time.Hour
	c.config.RetryConfig.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ExecuteWithRetry(ctx, func(context.Context) (interface{}, error) {
		return nil, stderrors.New("connection reset by peer")
	}, "topology")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(stderrors.New("UNAVAILABLE: io exception")))
	assert.True(t, isRetryableZeebeError(stderrors.New("write: broken pipe")))
	assert.False(t, isRetryableZeebeError(stderrors.New("NOT_FOUND: job 12 not found")))
}

func TestWorkers_DisabledWorkerIsNotOpened(t *testing.T) {
	w := NewWorkers(zaptest.NewLogger(t))
	w.Start(nil, "check-subscription", config.WorkerConfig{Enabled: false}, nil)
	assert.Equal(t, 0, w.Count())
	w.Close()
}
