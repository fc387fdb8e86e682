// internal/service/loyalty/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/domain"
)

const serviceName = "loyalty-service"

var requestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "loyalty_http_requests_total",
	Help: "Total number of handled loyalty API requests.",
}, []string{"operation", "result"})

// LoyaltyHandler 封装了 loyalty 服务的 HTTP 处理器。
// 路由遵循 Go 1.22 的方法+路径模式；终端和顾客端共用同一个服务，
// 鉴权由上游网关完成。
type LoyaltyHandler struct {
	issuance   *application.IssuanceService
	redemption *application.RedemptionService
	sync       *application.SyncService
	cards      *application.CardService
}

// NewLoyaltyHandler 创建一个新的 HTTP 处理器实例。
func NewLoyaltyHandler(issuance *application.IssuanceService, redemption *application.RedemptionService, syncSvc *application.SyncService, cards *application.CardService) *LoyaltyHandler {
	return &LoyaltyHandler{issuance: issuance, redemption: redemption, sync: syncSvc, cards: cards}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *LoyaltyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /issuance-requests", h.createIssuance)
	mux.HandleFunc("GET /issuance-requests", h.pollIssuances)
	mux.HandleFunc("GET /issuance-requests/{id}", h.getIssuance)
	mux.HandleFunc("POST /issuance-requests/{id}/approval", h.approveIssuance)
	mux.HandleFunc("POST /issuance-requests/{id}/rejection", h.rejectIssuance)

	mux.HandleFunc("POST /redemption-requests", h.createRedemption)
	mux.HandleFunc("GET /redemption-requests/{id}", h.getRedemption)
	mux.HandleFunc("POST /redemption-requests/{id}/staff-confirmation", h.confirmRedemption)
	mux.HandleFunc("POST /redemption-requests/{id}/completion", h.completeRedemption)
	mux.HandleFunc("POST /redemption-requests/{id}/failure", h.failRedemption)

	mux.HandleFunc("GET /customers/{id}/coupons", h.listCoupons)
	mux.HandleFunc("GET /customers/{id}/cards/{cardId}/balance", h.getBalance)

	mux.HandleFunc("POST /stamp-cards", h.createCard)
	mux.HandleFunc("GET /stamp-cards/{id}", h.getCard)
	mux.HandleFunc("POST /stamp-cards/{id}/status", h.updateCardStatus)
}

func (h *LoyaltyHandler) createIssuance(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.CreateIssuance")
	defer span.End()

	var req application.CreateIssuanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "createIssuance", http.StatusBadRequest, err)
		return
	}
	resp, err := h.issuance.Create(ctx, &req)
	if err != nil {
		writeBusinessError(ctx, w, "createIssuance", err)
		return
	}
	writeJSON(w, "createIssuance", http.StatusCreated, resp)
}

func (h *LoyaltyHandler) pollIssuances(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.PollIssuances")
	defer span.End()

	filter := domain.PollFilter{
		StoreID:     r.URL.Query().Get("storeId"),
		CustomerID:  r.URL.Query().Get("customerId"),
		StampCardID: r.URL.Query().Get("stampCardId"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.IssuanceStatus(strings.TrimSpace(s)))
		}
	}
	views, err := h.sync.Poll(ctx, filter)
	if err != nil {
		writeBusinessError(ctx, w, "pollIssuances", err)
		return
	}
	writeJSON(w, "pollIssuances", http.StatusOK, map[string]interface{}{"requests": views})
}

func (h *LoyaltyHandler) getIssuance(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.GetIssuance")
	defer span.End()

	view, err := h.sync.GetIssuance(ctx, r.PathValue("id"))
	if err != nil {
		writeBusinessError(ctx, w, "getIssuance", err)
		return
	}
	writeJSON(w, "getIssuance", http.StatusOK, view)
}

func (h *LoyaltyHandler) approveIssuance(w http.ResponseWriter, r *http.Request) {
	h.decideIssuance(w, r, domain.DecisionApprove, "approveIssuance")
}

func (h *LoyaltyHandler) rejectIssuance(w http.ResponseWriter, r *http.Request) {
	h.decideIssuance(w, r, domain.DecisionReject, "rejectIssuance")
}

func (h *LoyaltyHandler) decideIssuance(w http.ResponseWriter, r *http.Request, decision domain.Decision, operation string) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.DecideIssuance")
	defer span.End()

	var body application.DecideIssuanceRequest
	if r.Body != nil {
		// decidedBy 可省略，body 解析失败按空处理
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	view, err := h.issuance.Decide(ctx, r.PathValue("id"), decision, body.DecidedBy)
	if err != nil {
		writeBusinessError(ctx, w, operation, err)
		return
	}
	writeJSON(w, operation, http.StatusOK, view)
}

func (h *LoyaltyHandler) createRedemption(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.CreateRedemption")
	defer span.End()

	var req application.CreateRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "createRedemption", http.StatusBadRequest, err)
		return
	}
	resp, err := h.redemption.Create(ctx, &req)
	if err != nil {
		writeBusinessError(ctx, w, "createRedemption", err)
		return
	}
	writeJSON(w, "createRedemption", http.StatusCreated, resp)
}

func (h *LoyaltyHandler) getRedemption(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.GetRedemption")
	defer span.End()

	view, err := h.sync.GetRedemption(ctx, r.PathValue("id"))
	if err != nil {
		writeBusinessError(ctx, w, "getRedemption", err)
		return
	}
	writeJSON(w, "getRedemption", http.StatusOK, view)
}

func (h *LoyaltyHandler) confirmRedemption(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.ConfirmRedemption")
	defer span.End()

	view, err := h.redemption.StaffConfirm(ctx, r.PathValue("id"))
	if err != nil {
		writeBusinessError(ctx, w, "confirmRedemption", err)
		return
	}
	writeJSON(w, "confirmRedemption", http.StatusOK, view)
}

func (h *LoyaltyHandler) completeRedemption(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.CompleteRedemption")
	defer span.End()

	view, err := h.redemption.Complete(ctx, r.PathValue("id"))
	if err != nil {
		writeBusinessError(ctx, w, "completeRedemption", err)
		return
	}
	writeJSON(w, "completeRedemption", http.StatusOK, view)
}

func (h *LoyaltyHandler) failRedemption(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.FailRedemption")
	defer span.End()

	var body application.FailRedemptionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	view, err := h.redemption.Fail(ctx, r.PathValue("id"), body.Reason)
	if err != nil {
		writeBusinessError(ctx, w, "failRedemption", err)
		return
	}
	writeJSON(w, "failRedemption", http.StatusOK, view)
}

func (h *LoyaltyHandler) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.ListCoupons")
	defer span.End()

	views, err := h.sync.ListCoupons(ctx, r.PathValue("id"))
	if err != nil {
		writeBusinessError(ctx, w, "listCoupons", err)
		return
	}
	writeJSON(w, "listCoupons", http.StatusOK, map[string]interface{}{"coupons": views})
}

func (h *LoyaltyHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.GetBalance")
	defer span.End()

	view, err := h.sync.GetBalance(ctx, r.PathValue("id"), r.PathValue("cardId"))
	if err != nil {
		writeBusinessError(ctx, w, "getBalance", err)
		return
	}
	writeJSON(w, "getBalance", http.StatusOK, view)
}

func (h *LoyaltyHandler) createCard(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.CreateCard")
	defer span.End()

	var req application.CreateStampCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "createCard", http.StatusBadRequest, err)
		return
	}
	view, err := h.cards.Create(ctx, &req)
	if err != nil {
		writeBusinessError(ctx, w, "createCard", err)
		return
	}
	writeJSON(w, "createCard", http.StatusCreated, view)
}

func (h *LoyaltyHandler) getCard(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.GetCard")
	defer span.End()

	view, err := h.cards.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeBusinessError(ctx, w, "getCard", err)
		return
	}
	writeJSON(w, "getCard", http.StatusOK, view)
}

func (h *LoyaltyHandler) updateCardStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(serviceName).Start(extract(r), "http.UpdateCardStatus")
	defer span.End()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "updateCardStatus", http.StatusBadRequest, err)
		return
	}
	view, err := h.cards.UpdateStatus(ctx, r.PathValue("id"), domain.CardStatus(body.Status))
	if err != nil {
		writeBusinessError(ctx, w, "updateCardStatus", err)
		return
	}
	writeJSON(w, "updateCardStatus", http.StatusOK, view)
}

// extract 从请求头恢复上游传播的追踪上下文。
func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, operation string, status int, body interface{}) {
	requestCounter.WithLabelValues(operation, "ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, operation string, status int, err error) {
	requestCounter.WithLabelValues(operation, "error").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeBusinessError 把领域错误映射为 HTTP 状态码。
// 状态机冲突类（重复决定、已过期、重复 PENDING、券已使用）统一 409：
// 客户端应当重新拉取最新状态而不是重试原请求。
func writeBusinessError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStampCount):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotEligible):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrCardNotActive),
		errors.Is(err, domain.ErrDuplicatePendingRequest),
		errors.Is(err, domain.ErrRequestAlreadyDecided),
		errors.Is(err, domain.ErrRequestExpired),
		errors.Is(err, domain.ErrNotStaffConfirmed),
		errors.Is(err, domain.ErrCouponAlreadyUsed),
		errors.Is(err, domain.ErrCouponExpired):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		logger.Ctx(ctx).Error().Err(err).Str("operation", operation).Msg("request failed")
	}
	writeError(w, operation, status, err)
}
