package gateway_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ashutoshrp06/agentdesk/internal/gateway"
	"github.com/ashutoshrp06/agentdesk/internal/gateway/gatewaytest"
	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestHealthPoller_Check(t *testing.T) {
	backend := gatewaytest.New(t)
	poller := gateway.NewHealthPoller(backend.Client(), gateway.HealthConfig{Interval: time.Second})

	status, err := poller.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.HealthUp, status)

	backend.Fail(gatewaytest.RouteHealth, http.StatusServiceUnavailable)
	status, err = poller.Check(context.Background())
	assert.Error(t, err)
	assert.Equal(t, types.HealthDown, status)
}

func TestHealthPoller_RunReportsChangesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := gatewaytest.New(t)

	var mu sync.Mutex
	var seen []types.HealthStatus
	changed := make(chan struct{}, 8)

	poller := gateway.NewHealthPoller(backend.Client(), gateway.HealthConfig{
		Interval: 10 * time.Millisecond,
		OnChange: func(s types.HealthStatus, _ error) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
			changed <- struct{}{}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	waitFor(t, changed)
	backend.Fail(gatewaytest.RouteHealth, http.StatusInternalServerError)
	waitFor(t, changed)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, types.HealthUp, seen[0])
	assert.Equal(t, types.HealthDown, seen[1])

	backend.Close()
	http.DefaultClient.CloseIdleConnections()
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for health change")
	}
}
