package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"uniauth/internal/dto"
	"uniauth/internal/httpx"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	CORSOrigins        []string
	RateLimitPerMinute int // per client IP on /api/auth, 0 disables
}

type handler struct {
	auth   service.AuthService
	logger *slog.Logger
}

func NewRouter(auth service.AuthService, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{auth: auth, logger: logger}

	r := chi.NewRouter()

	// --- Middlewares ---
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.WithRequestAndTrace)
	r.Use(httpx.LogRequests(logger))
	r.Use(middleware.WithMetrics)
	r.Use(cors.Handler(corsOptions(cfg.CORSOrigins)))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(cfg.RateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				}),
			))
		}

		// email
		r.Post("/send-verification-code", h.sendVerificationCode)
		r.Post("/verify-email", h.verifyEmail)
		r.Get("/email/status/{email}", h.emailStatus)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/verify-reset-code", h.resetPassword)

		// password
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Get("/user", h.me)
		r.Delete("/user", h.deleteAccount)

		// web3
		r.Get("/web3/nonce/{walletAddress}", h.walletNonce)
		r.Post("/web3/verify", h.walletLogin)
		r.Post("/web3/bind", h.bindWallet)
		r.Get("/web3/status/{walletAddress}", h.walletStatus)
	})

	return r
}

func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.HeaderRequestID, middleware.HeaderTraceID},
		ExposedHeaders: []string{middleware.HeaderRequestID, middleware.HeaderTraceID},
		MaxAge:         300,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowCredentials = true
	}
	return opts
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (h *handler) sendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req dto.SendCodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.auth.SendEmailCode(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyEmailRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.auth.VerifyEmail(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) emailStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.EmailStatus(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.auth.ForgotPassword(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.VerifyCodeResponse{Success: true, Message: "Password reset successfully"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
		return
	}
	res, err := h.auth.Me(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
		return
	}
	if err := h.auth.DeleteAccount(r.Context(), token); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) walletNonce(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.WalletNonce(r.Context(), chi.URLParam(r, "walletAddress"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) walletLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.Web3LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.auth.WalletLogin(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) bindWallet(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
		return
	}
	var req dto.Web3LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.auth.BindWallet(r.Context(), token, req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.VerifyCodeResponse{Success: true, Message: "Wallet bound successfully"})
}

func (h *handler) walletStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.WalletStatus(r.Context(), chi.URLParam(r, "walletAddress"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
