package metrics

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCollectors_Record(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.BetPlaced("match", "user", 100)
	c.BetPlaced("match", "user", 50)
	c.Credited("match", "payout", 160)
	c.Credited("match", "refund", 0)
	c.Settled("match", "finished", time.Now())

	assert.Equal(t, 2.0, counterValue(t, c.BetsPlaced.WithLabelValues("match", "user")))
	assert.Equal(t, 150.0, counterValue(t, c.StakeVolume.WithLabelValues("match", "user")))
	assert.Equal(t, 160.0, counterValue(t, c.PayoutVolume.WithLabelValues("match", "payout")))
	assert.Equal(t, 1.0, counterValue(t, c.Settlements.WithLabelValues("match", "finished")))
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.BetPlaced("race", "bot", 1)
		c.Settled("race", "finished", time.Now())
		c.Inconsistent("race")
		c.ClientConnected(1)
	})
}

func TestStartServer_LogsListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	port := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	core, logs := observer.New(zap.ErrorLevel)
	srv := StartServer(port, func(context.Context) error { return nil }, zap.New(core))
	defer srv.Close()

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("metrics listener stopped").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartServer_ShutdownIsQuiet(t *testing.T) {
	free, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := strconv.Itoa(free.Addr().(*net.TCPAddr).Port)
	require.NoError(t, free.Close())

	core, logs := observer.New(zap.ErrorLevel)
	srv := StartServer(port, func(context.Context) error { return nil }, zap.New(core))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, srv.Shutdown(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, logs.Len())
}
