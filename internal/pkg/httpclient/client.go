// internal/pkg/httpclient/client.go
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Client 是一个可追踪的、可注入的 HTTP 客户端。
// 超时完全由每次请求传入的 context 控制，不在客户端上设置全局 Timeout。
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
}

// NewClient 创建一个新的客户端实例。
func NewClient(tracer trace.Tracer) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
	}
}

// PostJSON 发送 JSON 请求体并把响应体解码到 out（out 可为 nil）。
// 非 2xx 状态码返回 *StatusError，调用方可据此区分业务拒绝与传输故障。
func (c *Client) PostJSON(ctx context.Context, serviceURL string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = strings.NewReader(string(data))
	}
	return c.doJSON(ctx, http.MethodPost, serviceURL, payload, out)
}

// GetJSON 发起 GET 请求并把响应体解码到 out。
func (c *Client) GetJSON(ctx context.Context, serviceURL string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, serviceURL, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, serviceURL string, body io.Reader, out interface{}) error {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return err
	}
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])

	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, serviceURL, body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	span.SetAttributes(
		attribute.String("http.url", serviceURL),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, statusErr.Error())
		return statusErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// StatusError 表示服务端返回的非 2xx 响应。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
