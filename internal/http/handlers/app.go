package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"dfund/internal/domain"
	"dfund/internal/i18n"
	"dfund/internal/ledger"
	"dfund/internal/middleware"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// App holds the dependencies shared by every handler.
type App struct {
	Ledger   *ledger.Service
	Logger   zerolog.Logger
	Messages *i18n.Catalog
	// Ping reports storage health for /v1/healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewApp(svc *ledger.Service, logger zerolog.Logger, messages *i18n.Catalog) *App {
	if messages == nil {
		messages = i18n.MustNew()
	}
	return &App{Ledger: svc, Logger: logger, Messages: messages}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind      string `json:"kind"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	body.Message = a.Messages.Message(middleware.LocaleFromContext(r.Context()), body.Code, body.Message)
	a.json(w, status, map[string]errorBody{"error": body})
}

// badRequest reports a malformed request that never reached the ledger.
func (a *App) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	a.writeError(w, r, http.StatusBadRequest, errorBody{
		Kind:    string(domain.KindValidation),
		Code:    i18n.CodeBadRequest,
		Message: msg,
	})
}

// fail maps a ledger error onto an HTTP response.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		a.logger(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.writeError(w, r, http.StatusInternalServerError, errorBody{
			Kind:    "internal",
			Code:    i18n.CodeInternalError,
			Message: "internal error",
		})
		return
	}

	body := errorBody{Kind: string(de.Kind), Code: de.Code, Message: de.Message}
	status := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindAuthorization:
		status = http.StatusForbidden
		if middleware.CallerFromContext(r.Context()) == "" {
			status = http.StatusUnauthorized
		}
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindState:
		status = http.StatusConflict
	case domain.KindConflict:
		status = http.StatusConflict
		body.Retryable = true
		if body.Code == "" {
			body.Code = domain.CodeConcurrentUpdate
		}
	}
	a.writeError(w, r, status, body)
}

func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func projectIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

func caller(r *http.Request) string {
	return middleware.CallerFromContext(r.Context())
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
