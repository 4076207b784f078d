package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

type slowChecker struct{}

func (slowChecker) Name() string { return "slow" }

func (slowChecker) Check(ctx context.Context) CheckResult {
	<-ctx.Done()
	return CheckResult{Status: StatusUnhealthy, Message: ctx.Err().Error()}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestAggregator(t *testing.T) {
	t.Run("全部健康", func(t *testing.T) {
		agg := NewAggregator(0, &mockChecker{"sink", StatusHealthy}, &mockChecker{"udp", StatusHealthy})
		assert.Equal(t, StatusHealthy, agg.Report(context.Background()).Status)
		assert.True(t, agg.Ready(context.Background()))
	})

	t.Run("部分降级仍就绪", func(t *testing.T) {
		agg := NewAggregator(0, &mockChecker{"sink", StatusDegraded}, &mockChecker{"udp", StatusHealthy})
		assert.Equal(t, StatusDegraded, agg.Report(context.Background()).Status)
		assert.True(t, agg.Ready(context.Background()))
	})

	t.Run("不健康不就绪", func(t *testing.T) {
		agg := NewAggregator(0, &mockChecker{"sink", StatusDegraded}, &mockChecker{"udp", StatusUnhealthy})
		assert.Equal(t, StatusUnhealthy, agg.Report(context.Background()).Status)
		assert.False(t, agg.Ready(context.Background()))
	})

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(0, &mockChecker{"initial", StatusHealthy})
		agg.AddChecker(&mockChecker{"added", StatusHealthy})
		assert.Len(t, agg.CheckAll(context.Background()), 2)
	})

	t.Run("单项超时", func(t *testing.T) {
		agg := NewAggregator(20*time.Millisecond, slowChecker{}, &mockChecker{"udp", StatusHealthy})
		res := agg.CheckAll(context.Background())
		assert.Equal(t, StatusUnhealthy, res["slow"].Status)
		assert.Equal(t, StatusHealthy, res["udp"].Status)
	})
}

func TestSinkChecker(t *testing.T) {
	var errs uint64
	c := NewSinkChecker("csv", pinger{}, func() uint64 { return errs })

	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	errs = 3
	r := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, uint64(3), r.Details["write_errors_recent"])

	// 没有新的失败恢复健康
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	down := NewSinkChecker("postgres", pinger{err: errors.New("refused")}, nil)
	assert.Equal(t, StatusUnhealthy, down.Check(context.Background()).Status)
}

func TestUDPChecker(t *testing.T) {
	done := make(chan struct{})
	c := NewUDPChecker(
		func() string { return "127.0.0.1:5005" },
		func() <-chan struct{} { return done },
		func() map[string]interface{} { return map[string]interface{}{"datagrams": 10} },
	)
	r := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, 10, r.Details["datagrams"])

	close(done)
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)

	notStarted := NewUDPChecker(nil, func() <-chan struct{} { return nil }, nil)
	assert.Equal(t, StatusUnhealthy, notStarted.Check(context.Background()).Status)
}

func TestRegisterHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHTTPRoutes(r, NewAggregator(0, &mockChecker{"udp", StatusUnhealthy}))

	tests := []struct {
		path string
		code int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusServiceUnavailable},
		{"/health", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.code, rr.Code)
		})
	}
}
