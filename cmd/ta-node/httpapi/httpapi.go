// Package httpapi exposes the Trusted Authority core over HTTP: a chi
// router, JWT bearer auth issued by /login against the static operator
// table, and a taerr.Kind-to-status mapping for every core error.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rubinhealth/ta-core/config"
	"github.com/rubinhealth/ta-core/obslog"
	"github.com/rubinhealth/ta-core/tacore"
	"github.com/rubinhealth/ta-core/taerr"
)

// Server wires a tacore.Core to HTTP handlers.
type Server struct {
	core      *tacore.Core
	users     []config.User
	jwtSecret []byte
	router    chi.Router
}

// New constructs a Server and registers its routes.
func New(core *tacore.Core, cfg config.Config) *Server {
	s := &Server{
		core:      core,
		users:     cfg.Users,
		jwtSecret: []byte(cfg.JWTSecret),
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/patients/{patientID}/records", s.handleUpload)
		r.Put("/patients/{patientID}/records", s.handleUpdate)
		r.Get("/patients/{patientID}/records/latest", s.handleRead)
		r.Get("/patients/{patientID}/records/history", s.handleHistory)
	})

	return r
}

// requestIDMiddleware stamps every response with an X-Request-Id, the way
// pkg/api/server.go stamps resource IDs via uuid.New().String().
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, taerr.New(taerr.InvalidArgument, "httpapi.login", err))
		return
	}

	var matched *config.User
	for i := range s.users {
		if s.users[i].Name == req.Username {
			matched = &s.users[i]
			break
		}
	}
	if matched == nil || !config.VerifyPassword(*matched, req.Password) {
		writeError(w, taerr.New(taerr.InvalidArgument, "httpapi.login", errors.New("invalid credentials")))
		return
	}

	claims := jwt.MapClaims{
		"sub":  matched.Name,
		"role": matched.Role,
		"exp":  time.Now().Add(8 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		writeError(w, taerr.New(taerr.Internal, "httpapi.login", err))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: signed})
}

type contextKey string

const requesterContextKey contextKey = "requester"

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, taerr.New(taerr.InvalidArgument, "httpapi.auth", errors.New("missing bearer token")))
			return
		}
		raw := header[len(prefix):]

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, taerr.New(taerr.InvalidArgument, "httpapi.auth", errors.New("invalid token")))
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, taerr.New(taerr.Internal, "httpapi.auth", errors.New("unexpected claims type")))
			return
		}
		sub, _ := claims["sub"].(string)

		ctx := context.WithValue(r.Context(), requesterContextKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requesterFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requesterContextKey).(string); ok {
		return v
	}
	return "unknown"
}

type uploadResponse struct {
	PatientID string `json:"patient_id"`
	Priority  string `json:"priority"`
	Threshold int    `json:"threshold"`
	Version   int    `json:"version"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.writeCommon(w, r, s.core.UploadNewRecord)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.writeCommon(w, r, s.core.UpdateRecord)
}

func (s *Server) writeCommon(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, patientID string, fileBytes []byte, filename, requester string) (tacore.UploadResult, error)) {
	patientID := chi.URLParam(r, "patientID")

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, taerr.New(taerr.InvalidArgument, "httpapi.write", err))
		return
	}
	filename := r.Header.Get("X-Filename")
	if filename == "" {
		filename = "upload.bin"
	}

	result, err := op(r.Context(), patientID, body, filename, requesterFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		PatientID: result.PatientID,
		Priority:  result.Priority,
		Threshold: result.Threshold,
		Version:   result.Version,
	})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	result, err := s.core.ReconstructLatest(r.Context(), patientID, requesterFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	obslog.WithComponent("httpapi").Info().Str("patient_id", patientID).Int("version", result.Version).Msg("record reconstructed")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	history, err := s.core.GetHistory(r.Context(), patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps a taerr.Kind to an HTTP status per spec section 7.
func writeError(w http.ResponseWriter, err error) {
	kind := taerr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case taerr.InvalidArgument:
		status = http.StatusBadRequest
	case taerr.NotFound:
		status = http.StatusNotFound
	case taerr.Conflict, taerr.Integrity:
		status = http.StatusConflict
	case taerr.External:
		status = http.StatusBadGateway
	case taerr.Internal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}
