package logic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superlion8/brand-camera-sub000/models"
	"github.com/superlion8/brand-camera-sub000/pkg/generate"
)

func TestExecutor_PrimarySucceeds(t *testing.T) {
	primary := okBackend("p")
	fallback := okBackend("f")
	exec := NewExecutor(primary, fallback, time.Second)

	res, backend, err := exec.Execute(context.Background(), generate.Request{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, models.BackendPrimary, backend)
	assert.NotEmpty(t, res.ImageURL)
	// 主后端成功就不该碰备用后端
	assert.Zero(t, fallback.callCount())
}

func TestExecutor_FallbackRescues(t *testing.T) {
	primary := failBackend("p", errors.New("connection reset"))
	fallback := okBackend("f")
	exec := NewExecutor(primary, fallback, time.Second)

	_, backend, err := exec.Execute(context.Background(), generate.Request{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, models.BackendFallback, backend)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, fallback.callCount())
}

func TestExecutor_MalformedResponseTriggersFallback(t *testing.T) {
	primary := failBackend("p", generate.ErrMalformedResponse)
	fallback := okBackend("f")
	exec := NewExecutor(primary, fallback, time.Second)

	_, backend, err := exec.Execute(context.Background(), generate.Request{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, models.BackendFallback, backend)
}

func TestExecutor_BothFail_SingleCascadeOnly(t *testing.T) {
	primary := failBackend("p", errors.New("500 internal"))
	fallback := failBackend("f", errors.New("500 internal"))
	exec := NewExecutor(primary, fallback, time.Second)

	_, _, err := exec.Execute(context.Background(), generate.Request{TaskID: "t1"})
	require.Error(t, err)
	// 级联只有一层：两个后端各被调用一次，没有重试循环
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, fallback.callCount())

	var sf *SlotFailure
	require.ErrorAs(t, err, &sf)
	assert.True(t, models.ValidFailureClass(sf.Class))
}

func TestExecutor_FailureClassification(t *testing.T) {
	cases := []struct {
		name        string
		primaryErr  error
		fallbackErr error
		wantClass   string
	}{
		{"限流", errors.New("429 too many requests"), errors.New("429 Too Many Requests"), models.FailRateLimited},
		{"图片过大", errors.New("413 request entity too large"), errors.New("500 internal"), models.FailOversized},
		{"备用也超大", errors.New("500 internal"), errors.New("payload too large"), models.FailOversized},
		{"网络", errors.New("dial tcp: i/o timeout"), errors.New("dial tcp: connection refused"), models.FailNetworkError},
		{"超时", context.DeadlineExceeded, context.DeadlineExceeded, models.FailNetworkError},
		{"服务端", errors.New("500 internal server error"), errors.New("502 bad gateway"), models.FailServerError},
		{"畸形响应按服务端算", generate.ErrMalformedResponse, generate.ErrMalformedResponse, models.FailServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := NewExecutor(failBackend("p", tc.primaryErr), failBackend("f", tc.fallbackErr), time.Second)
			_, _, err := exec.Execute(context.Background(), generate.Request{TaskID: "t1"})
			var sf *SlotFailure
			require.ErrorAs(t, err, &sf)
			assert.Equal(t, tc.wantClass, sf.Class)
		})
	}
}
