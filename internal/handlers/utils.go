package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/logger"
)

const maxJSONBodyBytes = 1 << 20

// MessageResponse acknowledges an action that returns no resource.
type MessageResponse struct {
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeAppError is the single place errors become HTTP responses. Typed
// errors keep their status and public fields; anything else is a 500 whose
// cause is only logged.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}
	log := logger.FromContext(r.Context())
	if appErr.Status >= http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else if appErr.Err != nil {
		log.Debug("request rejected", "code", appErr.Code, "error", appErr.Err)
	}
	writeJSON(w, appErr.Status, appErr)
}

// decodeJSON reads a single JSON object into dst. An empty body leaves dst
// untouched so validation can report the missing fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.ErrInvalidRequestBody.WithErr(err)
	}
	return nil
}

// decodeAndValidate decodes the body into dst and runs the struct rules.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return validate(dst)
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// clientIP prefers the address chi's RealIP middleware already resolved.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parsePagination(r *http.Request) (page, perPage int, err error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, apperrors.FieldValidation("page", "Page must be a positive integer", raw)
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("per_page"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("limit"))
	}
	if rawLimit != "" {
		perPage, err = strconv.Atoi(rawLimit)
		if err != nil || perPage < 1 {
			return 0, 0, apperrors.FieldValidation("per_page", "Per page must be a positive integer", rawLimit)
		}
	}
	return page, perPage, nil
}
