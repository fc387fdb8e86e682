package interfaces_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"loyalty/internal/pkg/clock"
	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/infrastructure"
	"loyalty/internal/service/loyalty/interfaces"
)

type apiFixture struct {
	server *httptest.Server
	clock  *clock.Manual
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := infrastructure.NewMemoryStore()
	clk := clock.NewManual(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	tracer := otel.Tracer("loyalty-test")

	issuanceSvc := application.NewIssuanceService(store, nil, nil, nil, nil, clk, 120*time.Second, tracer)
	redemptionSvc := application.NewRedemptionService(store, nil, nil, clk, 60*time.Second, tracer)
	syncSvc := application.NewSyncService(store, nil, clk, tracer)
	cardSvc := application.NewCardService(store, clk, tracer)

	mux := http.NewServeMux()
	interfaces.NewLoyaltyHandler(issuanceSvc, redemptionSvc, syncSvc, cardSvc).RegisterRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &apiFixture{server: server, clock: clk}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func (f *apiFixture) createCard(t *testing.T, goal int) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/stamp-cards", map[string]interface{}{
		"storeId":        "store-1",
		"goalStampCount": goal,
		"rewardName":     "free coffee",
		"expireDays":     30,
		"activate":       true,
	})
	require.Equal(t, http.StatusCreated, status)
	return body["cardId"].(string)
}

func TestFullIssuanceAndRedemptionFlow(t *testing.T) {
	f := newAPIFixture(t)
	cardID := f.createCard(t, 2)

	// 顾客发起集章请求
	status, body := f.do(t, http.MethodPost, "/issuance-requests", map[string]interface{}{
		"storeId":     "store-1",
		"stampCardId": cardID,
		"customerId":  "cust-1",
		"count":       2,
	})
	require.Equal(t, http.StatusCreated, status)
	requestID := body["requestId"].(string)

	// 终端的审批队列里能看到它
	status, body = f.do(t, http.MethodGet, "/issuance-requests?storeId=store-1&status=PENDING", nil)
	require.Equal(t, http.StatusOK, status)
	requests := body["requests"].([]interface{})
	require.Len(t, requests, 1)

	// 审批通过：达标发券
	status, body = f.do(t, http.MethodPost, fmt.Sprintf("/issuance-requests/%s/approval", requestID), map[string]string{"decidedBy": "staff-1"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "APPROVED", body["status"])

	status, body = f.do(t, http.MethodGet, fmt.Sprintf("/customers/cust-1/cards/%s/balance", cardID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["currentCount"])

	status, body = f.do(t, http.MethodGet, "/customers/cust-1/coupons", nil)
	require.Equal(t, http.StatusOK, status)
	coupons := body["coupons"].([]interface{})
	require.Len(t, coupons, 1)
	couponID := coupons[0].(map[string]interface{})["couponId"].(string)

	// 核销：创建 -> 店员确认 -> 完成
	status, body = f.do(t, http.MethodPost, "/redemption-requests", map[string]string{
		"customerId": "cust-1",
		"couponId":   couponID,
	})
	require.Equal(t, http.StatusCreated, status)
	redemptionID := body["requestId"].(string)

	status, body = f.do(t, http.MethodPost, fmt.Sprintf("/redemption-requests/%s/staff-confirmation", redemptionID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "STAFF_CONFIRMED", body["status"])

	status, body = f.do(t, http.MethodPost, fmt.Sprintf("/redemption-requests/%s/completion", redemptionID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "COMPLETED", body["status"])

	// 券已被烧掉
	status, body = f.do(t, http.MethodGet, "/customers/cust-1/coupons", nil)
	require.Equal(t, http.StatusOK, status)
	used := body["coupons"].([]interface{})[0].(map[string]interface{})["usedAt"]
	assert.NotNil(t, used)
}

func TestHTTPStatusCodeMapping(t *testing.T) {
	f := newAPIFixture(t)
	cardID := f.createCard(t, 10)

	// 未知请求 404
	status, _ := f.do(t, http.MethodGet, "/issuance-requests/req-404", nil)
	assert.Equal(t, http.StatusNotFound, status)

	// count 非法 400
	status, _ = f.do(t, http.MethodPost, "/issuance-requests", map[string]interface{}{
		"stampCardId": cardID, "customerId": "cust-1", "count": 0,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	// 正常创建
	status, body := f.do(t, http.MethodPost, "/issuance-requests", map[string]interface{}{
		"stampCardId": cardID, "customerId": "cust-1", "count": 1,
	})
	require.Equal(t, http.StatusCreated, status)
	requestID := body["requestId"].(string)

	// 重复 PENDING 409
	status, _ = f.do(t, http.MethodPost, "/issuance-requests", map[string]interface{}{
		"stampCardId": cardID, "customerId": "cust-1", "count": 1,
	})
	assert.Equal(t, http.StatusConflict, status)

	// 审批后重复审批 409
	status, _ = f.do(t, http.MethodPost, fmt.Sprintf("/issuance-requests/%s/approval", requestID), nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodPost, fmt.Sprintf("/issuance-requests/%s/rejection", requestID), nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestHTTPExpiredDecisionConflict(t *testing.T) {
	f := newAPIFixture(t)
	cardID := f.createCard(t, 10)

	status, body := f.do(t, http.MethodPost, "/issuance-requests", map[string]interface{}{
		"stampCardId": cardID, "customerId": "cust-1", "count": 1,
	})
	require.Equal(t, http.StatusCreated, status)
	requestID := body["requestId"].(string)

	f.clock.Advance(121 * time.Second)

	status, _ = f.do(t, http.MethodPost, fmt.Sprintf("/issuance-requests/%s/approval", requestID), nil)
	assert.Equal(t, http.StatusConflict, status)

	// 轮询看到 EXPIRED
	status, body = f.do(t, http.MethodGet, "/issuance-requests/"+requestID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "EXPIRED", body["status"])
}

func TestHTTPCardLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	cardID := f.createCard(t, 5)

	status, body := f.do(t, http.MethodGet, "/stamp-cards/"+cardID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ACTIVE", body["status"])

	status, body = f.do(t, http.MethodPost, fmt.Sprintf("/stamp-cards/%s/status", cardID), map[string]string{"status": "PAUSED"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PAUSED", body["status"])

	// 暂停的卡拒绝发放请求
	status, _ = f.do(t, http.MethodPost, "/issuance-requests", map[string]interface{}{
		"stampCardId": cardID, "customerId": "cust-1", "count": 1,
	})
	assert.Equal(t, http.StatusConflict, status)
}
