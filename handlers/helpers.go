package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/pyramid-ladder/middleware"
	"github.com/Dosada05/pyramid-ladder/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type jsonResponse map[string]interface{}

var validate = validator.New(validator.WithRequiredStructEnabled())

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // ошибка программиста: передан не указатель
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

// readValidJSON decodes the body into dst and runs its validate tags. It
// writes the error response itself and reports whether to continue.
func readValidJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst interface{}) bool {
	if err := readJSON(w, r, dst); err != nil {
		badRequestResponse(w, r, logger, err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			failedValidationResponse(w, r, logger, verrs)
			return false
		}
		badRequestResponse(w, r, logger, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// okResponse wraps a successful payload in the result envelope.
func okResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, key string, value interface{}) {
	if err := writeJSON(w, status, jsonResponse{"success": true, key: value}, nil); err != nil {
		logger.Error("failed to write response", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func writeResult(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, result services.Result, extra jsonResponse) {
	env := jsonResponse{"success": result.Success, "kind": result.Kind, "message": result.Message}
	for k, v := range extra {
		env[k] = v
	}
	if err := writeJSON(w, status, env, nil); err != nil {
		logger.Error("failed to write error response", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

// serviceErrorResponse maps a ladder error to its HTTP status and a message
// in the caller's language.
func serviceErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	result := services.ResultFromError(err, r.Header.Get("Accept-Language"))
	status := statusForKind(result.Kind)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeResult(w, r, logger, status, result, nil)
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindNotFound, services.KindPositionNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindInvalidTransition, services.KindInvalidWinner:
		return http.StatusUnprocessableEntity
	case services.KindDuplicateChallenge, services.KindTooManyRejections:
		return http.StatusConflict
	case services.KindValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	writeResult(w, r, logger, http.StatusBadRequest, services.Result{
		Kind:    services.KindValidationFailed,
		Message: err.Error(),
	}, nil)
}

func failedValidationResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, verrs validator.ValidationErrors) {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[jsonFieldName(fe.Field())] = fmt.Sprintf("failed on '%s'", fe.Tag())
	}
	result := services.ResultFromError(services.ErrValidationFailed, r.Header.Get("Accept-Language"))
	writeResult(w, r, logger, http.StatusUnprocessableEntity, result, jsonResponse{"fields": fields})
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	writeResult(w, r, logger, http.StatusUnauthorized, services.Result{
		Kind:    services.KindForbidden,
		Message: "failed to identify current user",
	}, nil)
}

// currentUser extracts the authenticated user or answers 401.
func currentUser(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int, bool) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, logger)
		return 0, false
	}
	return userID, true
}

func getIDFromURL(r *http.Request, paramName string) (int, error) {
	idStr := chi.URLParam(r, paramName)
	if idStr == "" {
		return 0, fmt.Errorf("missing '%s' in URL path", paramName)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid '%s' in URL path: must be a positive integer", paramName)
	}
	return id, nil
}

// jsonFieldName turns a Go field name such as DefenderTeamID into the
// snake_case key used on the wire.
func jsonFieldName(field string) string {
	var b strings.Builder
	runes := []rune(field)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing '%s' query parameter", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid '%s' query parameter: must be a positive integer", name)
	}
	return v, nil
}

// optionalQueryInt returns nil when the parameter is absent.
func optionalQueryInt(r *http.Request, name string) (*int, error) {
	if r.URL.Query().Get(name) == "" {
		return nil, nil
	}
	v, err := queryInt(r, name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// queryTime parses an RFC 3339 ?name= value, falling back to def.
func queryTime(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid '%s' query parameter: expected RFC 3339 timestamp", name)
	}
	return ts, nil
}
