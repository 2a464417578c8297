package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/tundeabiodun/lms-backend/internal/api/httpx"
	"github.com/tundeabiodun/lms-backend/internal/api/validate"
	"github.com/tundeabiodun/lms-backend/internal/gateway/paystack"
	"github.com/tundeabiodun/lms-backend/internal/metrics"
	"github.com/tundeabiodun/lms-backend/internal/middleware"
	"github.com/tundeabiodun/lms-backend/internal/models"
	repo "github.com/tundeabiodun/lms-backend/internal/repository"
	"github.com/tundeabiodun/lms-backend/internal/services"
)

const webhookBodyLimit = 1 << 20

type PaymentHandler struct {
	settlement *services.SettlementService
	pricing    *services.PricingService
	wallet     *services.WalletService
	txns       repo.Transactions
	methods    repo.PaymentMethods

	webhookSecret string
	log           *slog.Logger
}

func NewPaymentHandler(
	settlement *services.SettlementService,
	pricing *services.PricingService,
	wallet *services.WalletService,
	txns repo.Transactions,
	methods repo.PaymentMethods,
	webhookSecret string,
	log *slog.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		settlement:    settlement,
		pricing:       pricing,
		wallet:        wallet,
		txns:          txns,
		methods:       methods,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

type initiateReq struct {
	CourseID        string `json:"course_id" validate:"required,uuid4"`
	CouponCode      string `json:"coupon_code" validate:"omitempty,max=64"`
	PaymentMethodID string `json:"payment_method_id" validate:"omitempty,uuid4"`
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing user", nil)
		return
	}

	var req initiateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "invalid request", err)
		return
	}

	res, err := h.settlement.OpenIntent(r.Context(), userID, services.IntentInput{
		CourseID:        req.CourseID,
		CouponCode:      req.CouponCode,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		h.writeSettlementError(w, err, res.Reference)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

type verifyReq struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing user", nil)
		return
	}

	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "invalid request", err)
		return
	}

	res, err := h.settlement.ReconcileByReference(r.Context(), req.Reference, userID)
	if err != nil {
		h.writeSettlementError(w, err, req.Reference)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"reference":     res.Reference,
		"enrollment_id": res.EnrollmentID,
	})
}

// Webhook authenticates the provider callback before anything else: the
// signature is checked over the raw body, and on mismatch the request is
// dropped with a bare 400 before a single store lookup happens.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "unreadable body", nil)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("x-paystack-signature")
	if !paystack.VerifySignature(h.webhookSecret, body, signature) {
		metrics.WebhookRejected.Inc()
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "invalid signature", nil)
		return
	}

	var evt services.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid payload", nil)
		return
	}

	if err := h.settlement.ReconcileByWebhook(r.Context(), evt); err != nil {
		// Non-200 makes the provider redeliver; reconciliation is
		// idempotent so that is safe.
		h.log.Error("webhook processing failed", "event", evt.Event, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "processing failed", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type validateCouponReq struct {
	Code     string `json:"code" validate:"required,max=64"`
	CourseID string `json:"course_id" validate:"omitempty,uuid4"`
}

func (h *PaymentHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "invalid request", err)
		return
	}

	out, err := h.pricing.ValidateCoupon(r.Context(), req.Code, req.CourseID)
	if err != nil {
		h.writeSettlementError(w, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *PaymentHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing user", nil)
		return
	}
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	txns, err := h.txns.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not list transactions", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txns)
}

func (h *PaymentHandler) Methods(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing user", nil)
		return
	}
	out, err := h.methods.ListByUser(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not list payment methods", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type walletCreditReq struct {
	UserID      string `json:"user_id" validate:"required,uuid4"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"omitempty,max=255"`
}

// WalletCredit is the admin-only top-up path, used for refunds and manual
// adjustments. Balances otherwise never move outside the wallet ledger.
func (h *PaymentHandler) WalletCredit(w http.ResponseWriter, r *http.Request) {
	if role, _ := middleware.Role(r.Context()); role != "admin" {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "admin only", nil)
		return
	}

	var req walletCreditReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "invalid request", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "amount must be a positive decimal", nil)
		return
	}

	wallet, err := h.wallet.Credit(r.Context(), req.UserID, models.WalletTransaction{
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not credit wallet", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wallet)
}

func (h *PaymentHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing user", nil)
		return
	}
	out, err := h.wallet.Current(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not load wallet", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// writeSettlementError maps the settlement taxonomy onto HTTP statuses.
// Provider internals never reach the client; the stored gateway response is
// for server-side audit only.
func (h *PaymentHandler) writeSettlementError(w http.ResponseWriter, err error, reference string) {
	switch {
	case errors.Is(err, services.ErrAlreadyEnrolled):
		httpx.WriteError(w, http.StatusBadRequest, "already_enrolled", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidCourse):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_course", err.Error(), nil)
	case errors.Is(err, services.ErrCouponInvalid):
		httpx.WriteError(w, http.StatusBadRequest, "coupon_invalid", err.Error(), nil)
	case errors.Is(err, services.ErrCouponNotApplicable):
		httpx.WriteError(w, http.StatusBadRequest, "coupon_not_applicable", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidPaymentMethod):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_payment_method", err.Error(), nil)
	case errors.Is(err, services.ErrTransactionNotFound):
		httpx.WriteError(w, http.StatusNotFound, "transaction_not_found", err.Error(), nil)
	case errors.Is(err, services.ErrProviderRejected):
		httpx.WriteError(w, http.StatusBadRequest, "payment_failed", "payment was not successful", nil)
	case errors.Is(err, services.ErrGatewayUnavailable):
		details := map[string]string{}
		if reference != "" {
			details["reference"] = reference
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, "gateway_unavailable", "payment provider unavailable, retry verification", details)
	default:
		h.log.Error("settlement error", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "something went wrong", nil)
	}
}
