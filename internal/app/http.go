package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"divledger/api/internal/authpw"
	"divledger/api/internal/export"
	"divledger/api/internal/search"
	"divledger/api/internal/session"
	"divledger/api/internal/util"

	"go.uber.org/zap"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/ready", h.handleReady)

	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/session", h.handleSession)

	mux.HandleFunc("GET /api/divisions", h.requireSession(h.handleDivisions))
	mux.HandleFunc("GET /api/divisions/edit", h.requireSession(h.handleDivisionsEdit))
	mux.HandleFunc("GET /api/changelog", h.requireSession(h.handleChangelog))
	mux.HandleFunc("PATCH /api/division/full-update", h.requireSession(h.handleFullUpdate))
	mux.HandleFunc("POST /api/save-division", h.requireSession(h.handleSaveDivision))
	mux.HandleFunc("POST /api/reviews", h.requireSession(h.handleSetReview))
	mux.HandleFunc("GET /api/search", h.requireSession(h.handleSearch))

	mux.HandleFunc("GET /pdf-preview", h.handlePDF(false))
	mux.HandleFunc("GET /download-division-pdf-file", h.handlePDF(true))

	return h.middleware(mux)
}

func (h *HTTPServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := util.NewRequestID()
		w.Header().Set("X-Request-Id", requestID)

		if h.corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", h.corsOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)

		if h.logger != nil {
			h.logger.Info("request",
				zap.String("id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		}
	})
}

func (h *HTTPServer) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		if _, err := h.service.SessionFromToken(r.Context(), token); err != nil {
			writeError(w, http.StatusUnauthorized, "Session expired or invalid", nil)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("session_token"); err == nil {
		return cookie.Value
	}
	return ""
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database not reachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authpw.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.service.Register(r.Context(), req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Registration successful"})
}

func (h *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"token":     sess.Token,
		"username":  sess.Username,
		"firstName": sess.FirstName,
	})
}

func (h *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), bearerToken(r)); err != nil && !errors.Is(err, session.ErrNotFound) {
		h.writeServiceError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}
	sess, err := h.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Session expired or invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":  sess.Username,
		"firstName": sess.FirstName,
	})
}

func (h *HTTPServer) handleDivisions(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.HomeView(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *HTTPServer) handleDivisionsEdit(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.EditView(r.Context(), r.URL.Query().Get("year"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *HTTPServer) handleChangelog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Changelog(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *HTTPServer) handleFullUpdate(w http.ResponseWriter, r *http.Request) {
	var input FullUpdateInput
	if !decodeBody(w, r, &input) {
		return
	}
	result, err := h.service.FullUpdate(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"summary": result.Summary,
		"results": result.Items,
	})
}

func (h *HTTPServer) handleSaveDivision(w http.ResponseWriter, r *http.Request) {
	var input SaveDivisionInput
	if !decodeBody(w, r, &input) {
		return
	}
	if err := h.service.SaveDivision(r.Context(), input); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Division saved"})
}

func (h *HTTPServer) handleSetReview(w http.ResponseWriter, r *http.Request) {
	var input ReviewInput
	if !decodeBody(w, r, &input) {
		return
	}
	if err := h.service.SetReview(r.Context(), input); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:       r.URL.Query().Get("q"),
		FilterType: search.ResultType(r.URL.Query().Get("type")),
		Limit:      25,
	}
	writeJSON(w, http.StatusOK, h.service.Search(r.Context(), q))
}

func (h *HTTPServer) handlePDF(download bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		divisionName := r.URL.Query().Get("division")
		if divisionName == "" {
			writeError(w, http.StatusBadRequest, "Division name is required", nil)
			return
		}
		result, err := h.service.DivisionPDF(r.Context(), divisionName)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		disposition := "inline"
		if download {
			disposition = "attachment"
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", disposition+`; filename="`+result.Filename+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
	}
}

func (h *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var derr *DomainError
	if errors.As(err, &derr) {
		writeError(w, derr.Status, derr.Message, derr.Details)
		return
	}
	switch {
	case errors.Is(err, authpw.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid username or password", nil)
	case errors.Is(err, authpw.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken", nil)
	case errors.Is(err, authpw.ErrEmailExists):
		writeError(w, http.StatusConflict, "Email already registered", nil)
	case errors.Is(err, authpw.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "All fields are required", nil)
	case errors.Is(err, authpw.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "Account disabled", nil)
	case errors.Is(err, export.ErrPDFDependencyMissing):
		writeError(w, http.StatusInternalServerError, "PDF generation unavailable", nil)
	default:
		if h.logger != nil {
			h.logger.Error("request failed", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	payload := map[string]any{"error": message}
	if details != nil {
		payload["details"] = details
	}
	writeJSON(w, status, payload)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return false
	}
	return true
}
