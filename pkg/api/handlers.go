package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marketdash/marketd/pkg/auth"
	"github.com/marketdash/marketd/pkg/coingecko"
	"github.com/marketdash/marketd/pkg/market"
	"github.com/marketdash/marketd/pkg/store"
)

// Stale-data response markers.
const (
	headerDataStale      = "X-Data-Stale"
	headerUpstreamStatus = "X-Upstream-Status"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// requireUser resolves the bearer token and loads the caller before invoking
// the handler.
func (s *Server) requireUser(next func(w http.ResponseWriter, r *http.Request, user *store.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		subject, err := s.tokens.Resolve(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		user, err := s.users.GetByEmail(r.Context(), subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "User not found")
				return
			}
			s.logger.Error().Err(err).Msg("User lookup failed")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		next(w, r, user)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Password hashing failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := s.users.Create(r.Context(), req.Email, hash)
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		s.logger.Error().Err(err).Msg("User creation failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("Token issuance failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Info().Str("email", user.Email).Msg("User registered")
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.logger.Error().Err(err).Msg("User lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("Token issuance failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request, user *store.User) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q, err := parseMarketsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.market.Markets(r.Context(), user.Email, q)
	if err != nil {
		s.writeMarketError(w, err)
		return
	}

	if result.Stale {
		w.Header().Set(headerDataStale, "true")
		w.Header().Set(headerUpstreamStatus, result.UpstreamStatus)
	}

	items := result.Items
	if items == nil {
		items = []coingecko.MarketItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// parseMarketsQuery applies the original endpoint defaults:
// vs_currency=usd, per_page=20, page=1.
func parseMarketsQuery(r *http.Request) (coingecko.Query, error) {
	q := coingecko.Query{VsCurrency: "usd", PerPage: 20, Page: 1}

	params := r.URL.Query()
	if v := params.Get("vs_currency"); v != "" {
		q.VsCurrency = v
	}
	if v := params.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return coingecko.Query{}, errors.New("per_page must be an integer")
		}
		q.PerPage = n
	}
	if v := params.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return coingecko.Query{}, errors.New("page must be an integer")
		}
		q.Page = n
	}
	return q, nil
}

// writeMarketError maps orchestrator errors to stable status codes.
func (s *Server) writeMarketError(w http.ResponseWriter, err error) {
	var quotaErr *market.QuotaExceededError
	var upstreamErr *market.UpstreamError

	switch {
	case errors.Is(err, market.ErrPerPageRange):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.As(err, &quotaErr):
		writeError(w, http.StatusTooManyRequests, quotaErr.Error())

	case errors.As(err, &upstreamErr) && upstreamErr.Overloaded:
		writeError(w, http.StatusServiceUnavailable,
			"Upstream rate limit reached. Please try again in 30-60 seconds.")

	case errors.As(err, &upstreamErr):
		writeError(w, http.StatusBadGateway, "Upstream request failed")

	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "User not found")

	default:
		s.logger.Error().Err(err).Msg("Markets request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user *store.User) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var lastRequest *string
	if user.LastRequestDate != nil {
		v := user.LastRequestDate.UTC().Format(time.RFC3339)
		lastRequest = &v
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"email":               user.Email,
		"plan_type":           user.Plan,
		"daily_request_count": user.DailyRequestCount,
		"last_request_date":   lastRequest,
		"created_at":          user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
