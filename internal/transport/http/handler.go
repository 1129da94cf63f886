package http

import (
	"errors"
	"net/http"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/httpx"
	"uniauth/internal/observability/middleware"
)

const dailyLimitRetryAfter int64 = 24 * 60 * 60

func writeError(w http.ResponseWriter, status int, code, message string) {
	httpx.WriteJSON(w, status, dto.ErrorResponse{
		Status:    status,
		ErrorCode: code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// writeServiceError maps domain errors to responses. Anything it does not
// recognise is logged and answered with a bare 500.
func (h *handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cooldown *domain.CooldownError
		verr     *domain.VerificationError
	)
	switch {
	case errors.Is(err, httpx.ErrBadBody):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed request body")

	case errors.As(err, &cooldown):
		retry := cooldown.RetryAfterSeconds
		httpx.WriteJSON(w, http.StatusTooManyRequests, dto.VerifyCodeResponse{
			Error:      "COOLDOWN",
			Message:    cooldown.Error(),
			RetryAfter: &retry,
		})
	case errors.Is(err, domain.ErrDailyLimitReached):
		retry := dailyLimitRetryAfter
		httpx.WriteJSON(w, http.StatusTooManyRequests, dto.VerifyCodeResponse{
			Error:      "RATE_LIMITED",
			Message:    "Daily verification code limit reached",
			RetryAfter: &retry,
		})

	case errors.As(err, &verr):
		resp := dto.VerifyCodeResponse{Error: verificationCode(verr.Status), Message: verr.Error()}
		if verr.Status == domain.VerificationInvalid {
			remaining := verr.RemainingAttempts
			resp.RemainingAttempts = &remaining
		}
		httpx.WriteJSON(w, http.StatusBadRequest, resp)

	case errors.Is(err, domain.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", "Invalid wallet address")
	case errors.Is(err, domain.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature")
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
	case errors.Is(err, domain.ErrUserDisabled):
		writeError(w, http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled")

	case errors.Is(err, domain.ErrWalletAlreadyBound), errors.Is(err, domain.ErrUserAlreadyHasWallet):
		writeError(w, http.StatusConflict, "BINDING_FAILED", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())

	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrAuthFailed):
		writeError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Authentication failed")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())

	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"trace_id", middleware.TraceIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func verificationCode(s domain.VerificationStatus) string {
	switch s {
	case domain.VerificationNotFound:
		return "CODE_NOT_FOUND"
	case domain.VerificationExpired:
		return "CODE_EXPIRED"
	case domain.VerificationMaxRetriesExceeded:
		return "MAX_RETRIES_EXCEEDED"
	}
	return "INVALID_CODE"
}
