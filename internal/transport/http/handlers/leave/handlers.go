package leavehandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"parahr/internal/domain/audit"
	"parahr/internal/domain/auth"
	"parahr/internal/domain/leave"
	"parahr/internal/domain/notifications"
	"parahr/internal/transport/http/api"
	"parahr/internal/transport/http/middleware"
	"parahr/internal/transport/http/shared"
)

type Handler struct {
	Service *leave.Service
	Notify  *notifications.Service
	Audit   *audit.Service
}

func NewHandler(service *leave.Service, notify *notifications.Service, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Notify: notify, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermLeaveRead)).Get("/requests", h.handleListRequests)
		r.With(middleware.RequirePermission(auth.PermLeaveWrite)).Post("/requests", h.handleSubmitRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveRead)).Get("/requests/{requestID}", h.handleGetRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveApprove)).Post("/requests/{requestID}/approve", h.handleApproveRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveApprove)).Post("/requests/{requestID}/reject", h.handleRejectRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveWrite)).Post("/requests/{requestID}/cancel", h.handleCancelRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveWrite)).Post("/requests/{requestID}/withdraw", h.handleWithdrawRequest)
		r.With(middleware.RequirePermission(auth.PermLeaveRead)).Get("/calendar", h.handleCalendar)
	})
	r.Route("/reports", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReportsRead)).Get("/balances", h.handleReportBalances)
		r.With(middleware.RequirePermission(auth.PermReportsRead)).Get("/usage", h.handleReportUsage)
	})
}

// failLifecycleError maps engine errors onto status codes. Order matters:
// the structured errors unwrap to sentinels, so the most specific checks
// come first.
func failLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var balanceErr *leave.InsufficientBalanceError
	if errors.As(err, &balanceErr) {
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "insufficient_balance", "insufficient leave balance", map[string]any{
			"employeeId": balanceErr.EmployeeID,
			"available":  balanceErr.Available,
			"requested":  balanceErr.Requested,
		}, requestID)
		return
	}

	var transitionErr *leave.TransitionError
	if errors.As(err, &transitionErr) {
		api.FailWithDetails(w, http.StatusConflict, "invalid_transition", "request status does not allow this operation", map[string]any{
			"status":    transitionErr.From,
			"operation": transitionErr.Op,
		}, requestID)
		return
	}

	switch {
	case errors.Is(err, leave.ErrInvalidRange):
		api.Fail(w, http.StatusBadRequest, "invalid_dates", "end date precedes start date", requestID)
	case errors.Is(err, leave.ErrInsufficientBalance):
		api.Fail(w, http.StatusUnprocessableEntity, "insufficient_balance", "insufficient leave balance", requestID)
	case errors.Is(err, leave.ErrInvalidTransition):
		api.Fail(w, http.StatusConflict, "invalid_transition", "request status does not allow this operation", requestID)
	case errors.Is(err, leave.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", requestID)
	case errors.Is(err, leave.ErrEmployeeNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", requestID)
	case errors.Is(err, leave.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", requestID)
	case errors.Is(err, leave.ErrTransactionAborted):
		api.Fail(w, http.StatusServiceUnavailable, "transaction_aborted", "operation could not be committed, retry", requestID)
	default:
		api.Fail(w, http.StatusInternalServerError, "leave_operation_failed", "leave operation failed", requestID)
	}
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var employeeID, managerEmployeeID string
	if user.RoleName == auth.RoleEmployee {
		if id, err := h.Service.EmployeeIDByUserID(r.Context(), user.TenantID, user.UserID); err == nil {
			employeeID = id
		} else {
			slog.Warn("leave requests employee lookup failed", "err", err)
		}
	}
	if user.RoleName == auth.RoleManager {
		if id, err := h.Service.EmployeeIDByUserID(r.Context(), user.TenantID, user.UserID); err == nil {
			managerEmployeeID = id
		} else {
			slog.Warn("leave requests manager lookup failed", "err", err)
		}
	}

	page := shared.ParsePagination(r, 100, 500)
	result, err := h.Service.ListRequests(r.Context(), user.TenantID, user.RoleName, employeeID, managerEmployeeID, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "leave_requests_failed", "failed to list requests", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	api.Success(w, result.Requests, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	requestID := chi.URLParam(r, "requestID")
	req, err := h.Service.GetRequest(r.Context(), user.TenantID, requestID)
	if err != nil {
		failLifecycleError(w, r, err)
		return
	}

	allowed, err := h.canAccessRequest(r.Context(), user, req.EmployeeID)
	if err != nil {
		slog.Warn("leave request access check failed", "requestId", requestID, "err", err)
	}
	if !allowed {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

type submitRequestPayload struct {
	EmployeeID string `json:"employeeId"`
	Kind       string `json:"kind"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Reason     string `json:"reason"`
}

func (h *Handler) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload submitRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	kind := leave.Kind(strings.TrimSpace(payload.Kind))
	if kind == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "leave kind required", middleware.GetRequestID(r.Context()))
		return
	}

	// Non-HR callers always submit for themselves; only HR may name another
	// employee.
	if user.RoleName != auth.RoleHR {
		if id, err := h.Service.EmployeeIDByUserID(r.Context(), user.TenantID, user.UserID); err == nil {
			payload.EmployeeID = id
		} else {
			slog.Warn("leave request self employee lookup failed", "err", err)
		}
	}
	if strings.TrimSpace(payload.EmployeeID) == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "employee id required", middleware.GetRequestID(r.Context()))
		return
	}

	startDate, err := shared.ParseDate(payload.StartDate)
	if err != nil || startDate.IsZero() {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid start date", middleware.GetRequestID(r.Context()))
		return
	}
	endDate, err := shared.ParseDate(payload.EndDate)
	if err != nil || endDate.IsZero() {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid end date", middleware.GetRequestID(r.Context()))
		return
	}

	req, err := h.Service.Submit(r.Context(), user.TenantID, leave.SubmitParams{
		EmployeeID: payload.EmployeeID,
		Kind:       kind,
		StartDate:  startDate,
		EndDate:    endDate,
		Reason:     payload.Reason,
	})
	if err != nil {
		failLifecycleError(w, r, err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "leave.request.submit", "leave_request", req.ID, middleware.GetRequestID(r.Context()), nil, map[string]any{
		"employeeId": req.EmployeeID,
		"kind":       req.Kind,
		"startDate":  payload.StartDate,
		"endDate":    payload.EndDate,
		"days":       req.DayCount,
	}); err != nil {
		slog.Warn("audit leave.request.submit failed", "err", err)
	}

	if managerUserID, err := h.Service.ManagerUserIDByEmployeeID(r.Context(), user.TenantID, req.EmployeeID); err == nil && managerUserID != "" {
		if err := h.Notify.Create(r.Context(), user.TenantID, managerUserID, notifications.TypeLeaveSubmitted, "Leave request submitted", "A leave request is awaiting your decision."); err != nil {
			slog.Warn("leave submitted notification failed", "err", err)
		}
	}

	api.Created(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.handleDecideRequest(w, r, leave.OutcomeApprove)
}

func (h *Handler) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	h.handleDecideRequest(w, r, leave.OutcomeReject)
}

func (h *Handler) handleDecideRequest(w http.ResponseWriter, r *http.Request, outcome leave.Outcome) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	requestID := chi.URLParam(r, "requestID")
	req, err := h.Service.GetRequest(r.Context(), user.TenantID, requestID)
	if err != nil {
		failLifecycleError(w, r, err)
		return
	}

	// Managers decide only for their direct reports; HR decides for anyone.
	if user.RoleName == auth.RoleManager {
		selfEmployeeID, err := h.Service.EmployeeIDByUserID(r.Context(), user.TenantID, user.UserID)
		if err != nil {
			slog.Warn("leave decide manager lookup failed", "err", err)
		}
		allowed, err := h.Service.IsManagerOf(r.Context(), user.TenantID, selfEmployeeID, req.EmployeeID)
		if err != nil {
			slog.Warn("leave decide manager scope check failed", "err", err)
		}
		if !allowed {
			api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", middleware.GetRequestID(r.Context()))
			return
		}
	}

	if err := h.Service.Decide(r.Context(), user.TenantID, requestID, outcome, user.UserID); err != nil {
		failLifecycleError(w, r, err)
		return
	}

	action := "leave.request." + string(outcome)
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, "leave_request", requestID, middleware.GetRequestID(r.Context()), map[string]any{"status": req.Status}, map[string]any{"employeeId": req.EmployeeID, "days": req.DayCount}); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}

	ntype := notifications.TypeLeaveApproved
	title := "Leave approved"
	body := fmt.Sprintf("Your %s leave request was approved.", req.Kind)
	if outcome == leave.OutcomeReject {
		ntype = notifications.TypeLeaveRejected
		title = "Leave rejected"
		body = fmt.Sprintf("Your %s leave request was rejected.", req.Kind)
	}
	if ownerUserID, err := h.Service.UserIDByEmployeeID(r.Context(), user.TenantID, req.EmployeeID); err == nil && ownerUserID != "" {
		if err := h.Notify.Create(r.Context(), user.TenantID, ownerUserID, ntype, title, body); err != nil {
			slog.Warn("leave decision notification failed", "err", err)
		}
	}

	target := leave.StatusApproved
	if outcome == leave.OutcomeReject {
		target = leave.StatusRejected
	}
	api.Success(w, map[string]any{"status": target}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	selfEmployeeID, err := h.Service.EmployeeIDByUserID(r.Context(), user.TenantID, user.UserID)
	if err != nil || selfEmployeeID == "" {
		api.Fail(w, http.StatusForbidden, "forbidden", "no employee record linked to this account", middleware.GetRequestID(r.Context()))
		return
	}

	requestID := chi.URLParam(r, "requestID")
	if err := h.Service.Cancel(r.Context(), user.TenantID, requestID, selfEmployeeID); err != nil {
		failLifecycleError(w, r, err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "leave.request.cancel", "leave_request", requestID, middleware.GetRequestID(r.Context()), nil, map[string]any{"employeeId": selfEmployeeID}); err != nil {
		slog.Warn("audit leave.request.cancel failed", "err", err)
	}
	api.Success(w, map[string]string{"status": "cancelled"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleWithdrawRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	selfEmployeeID, err := h.Service.EmployeeIDByUserID(r.Context(), user.TenantID, user.UserID)
	if err != nil || selfEmployeeID == "" {
		api.Fail(w, http.StatusForbidden, "forbidden", "no employee record linked to this account", middleware.GetRequestID(r.Context()))
		return
	}

	requestID := chi.URLParam(r, "requestID")
	if err := h.Service.WithdrawApproved(r.Context(), user.TenantID, requestID, selfEmployeeID); err != nil {
		failLifecycleError(w, r, err)
		return
	}

	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "leave.request.withdraw", "leave_request", requestID, middleware.GetRequestID(r.Context()), nil, map[string]any{"employeeId": selfEmployeeID}); err != nil {
		slog.Warn("audit leave.request.withdraw failed", "err", err)
	}

	if managerUserID, err := h.Service.ManagerUserIDByEmployeeID(r.Context(), user.TenantID, selfEmployeeID); err == nil && managerUserID != "" {
		if err := h.Notify.Create(r.Context(), user.TenantID, managerUserID, notifications.TypeLeaveWithdrawn, "Leave withdrawn", "An approved leave request was withdrawn."); err != nil {
			slog.Warn("leave withdrawn notification failed", "err", err)
		}
	}
	api.Success(w, map[string]string{"status": "withdrawn"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var selfEmployeeID string
	if user.RoleName != auth.RoleHR {
		if id, err := h.Service.EmployeeIDByUserID(r.Context(), user.TenantID, user.UserID); err == nil {
			selfEmployeeID = id
		} else {
			slog.Warn("leave calendar employee lookup failed", "err", err)
		}
	}

	entries, err := h.Service.Calendar(r.Context(), user.TenantID, user.RoleName, selfEmployeeID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "calendar_failed", "failed to load calendar", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, entries, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReportBalances(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	report, err := h.Service.ReportBalances(r.Context(), user.TenantID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to load report", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, report, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReportUsage(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	report, err := h.Service.ReportUsage(r.Context(), user.TenantID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to load report", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, report, middleware.GetRequestID(r.Context()))
}

func (h *Handler) canAccessRequest(ctx context.Context, user auth.UserContext, requestEmployeeID string) (bool, error) {
	if user.RoleName == auth.RoleHR {
		return true, nil
	}

	selfEmployeeID, err := h.Service.EmployeeIDByUserID(ctx, user.TenantID, user.UserID)
	if err != nil {
		return false, err
	}
	if selfEmployeeID == "" {
		return false, nil
	}
	if selfEmployeeID == requestEmployeeID {
		return true, nil
	}
	if user.RoleName == auth.RoleManager {
		return h.Service.IsManagerOf(ctx, user.TenantID, selfEmployeeID, requestEmployeeID)
	}
	return false, nil
}
