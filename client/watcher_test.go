package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"loyalty/client"
	"loyalty/internal/service/loyalty/application"
)

var watcherTracer = otel.Tracer("watcher-test")

func TestAwaitIssuanceReturnsOnDecision(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "PENDING"
		// 第三次轮询时请求已被审批
		if atomic.AddInt32(&polls, 1) >= 3 {
			status = "APPROVED"
		}
		_ = json.NewEncoder(w).Encode(application.IssuanceRequestView{
			RequestID: "req-1",
			Status:    status,
		})
	}))
	defer server.Close()

	watcher := client.NewWatcher(server.URL, watcherTracer).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	view, err := watcher.AwaitIssuance(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", view.Status)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestAwaitIssuanceTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(application.IssuanceRequestView{
			RequestID: "req-1",
			Status:    "PENDING",
		})
	}))
	defer server.Close()

	watcher := client.NewWatcher(server.URL, watcherTracer).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	view, err := watcher.AwaitIssuance(ctx, "req-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// 超时返回最后一次观察到的状态
	require.NotNil(t, view)
	assert.Equal(t, "PENDING", view.Status)
}

func TestAwaitRedemptionStaffConfirmedIsNotTerminal(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var status string
		switch atomic.AddInt32(&polls, 1) {
		case 1:
			status = "PENDING"
		case 2:
			status = "STAFF_CONFIRMED"
		default:
			status = "COMPLETED"
		}
		_ = json.NewEncoder(w).Encode(application.RedemptionRequestView{
			RequestID: "red-1",
			Status:    status,
		})
	}))
	defer server.Close()

	watcher := client.NewWatcher(server.URL, watcherTracer).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	view, err := watcher.AwaitRedemption(ctx, "red-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", view.Status)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestListPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/issuance-requests", r.URL.Path)
		assert.Equal(t, "store-1", r.URL.Query().Get("storeId"))
		assert.Equal(t, "PENDING", r.URL.Query().Get("status"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"requests": []application.IssuanceRequestView{
				{RequestID: "req-1", Status: "PENDING"},
				{RequestID: "req-2", Status: "PENDING"},
			},
		})
	}))
	defer server.Close()

	watcher := client.NewWatcher(server.URL, watcherTracer)
	requests, err := watcher.ListPending(context.Background(), "store-1")
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, "req-1", requests[0].RequestID)
}
