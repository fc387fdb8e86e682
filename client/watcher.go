// client/watcher.go
package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/pkg/httpclient"
	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/domain"
)

const defaultPollInterval = 2 * time.Second

// Watcher 是顾客端/终端的轮询客户端：按固定间隔拉取请求状态，
// 直到请求离开 PENDING 或 ctx 超时。轮询间隔只是体验参数，
// 服务端的 expiresAt 才是权威截止时间。
type Watcher struct {
	baseURL  string
	http     *httpclient.Client
	interval time.Duration
}

// NewWatcher 创建一个指向 baseURL 的轮询客户端。
func NewWatcher(baseURL string, tracer trace.Tracer) *Watcher {
	return &Watcher{
		baseURL:  baseURL,
		http:     httpclient.NewClient(tracer),
		interval: defaultPollInterval,
	}
}

// WithInterval 调整轮询间隔。
func (w *Watcher) WithInterval(interval time.Duration) *Watcher {
	w.interval = interval
	return w
}

// AwaitIssuance 轮询发放请求直到它离开 PENDING。
// ctx 超时或取消时返回最后一次观察到的状态和 ctx 的错误。
func (w *Watcher) AwaitIssuance(ctx context.Context, requestID string) (*application.IssuanceRequestView, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last *application.IssuanceRequestView
	for {
		var view application.IssuanceRequestView
		err := w.http.GetJSON(ctx, fmt.Sprintf("%s/issuance-requests/%s", w.baseURL, requestID), &view)
		if err == nil {
			last = &view
			if view.Status != string(domain.IssuancePending) {
				return last, nil
			}
		} else if ctx.Err() != nil {
			return last, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// AwaitRedemption 轮询核销请求直到它到达终态
// （COMPLETED / FAILED / EXPIRED；STAFF_CONFIRMED 不是终态）。
func (w *Watcher) AwaitRedemption(ctx context.Context, requestID string) (*application.RedemptionRequestView, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last *application.RedemptionRequestView
	for {
		var view application.RedemptionRequestView
		err := w.http.GetJSON(ctx, fmt.Sprintf("%s/redemption-requests/%s", w.baseURL, requestID), &view)
		if err == nil {
			last = &view
			switch domain.RedemptionStatus(view.Status) {
			case domain.RedemptionCompleted, domain.RedemptionFailed, domain.RedemptionExpired:
				return last, nil
			}
		} else if ctx.Err() != nil {
			return last, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ListPending 拉取一家店当前的 PENDING 发放请求，供终端展示审批队列。
func (w *Watcher) ListPending(ctx context.Context, storeID string) ([]*application.IssuanceRequestView, error) {
	query := url.Values{}
	query.Set("storeId", storeID)
	query.Set("status", string(domain.IssuancePending))

	var out struct {
		Requests []*application.IssuanceRequestView `json:"requests"`
	}
	err := w.http.GetJSON(ctx, fmt.Sprintf("%s/issuance-requests?%s", w.baseURL, query.Encode()), &out)
	if err != nil {
		return nil, err
	}
	return out.Requests, nil
}
