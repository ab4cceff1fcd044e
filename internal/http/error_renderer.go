package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/ldap-user-collection/internal/errors"
)

// errorStatus maps application error codes to HTTP statuses.
//
//nolint:gochecknoglobals // static read-only lookup
var errorStatus = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidation:       http.StatusBadRequest,
	apperrors.ErrCodeUnauthorized:     http.StatusUnauthorized,
	apperrors.ErrCodeNotFound:         http.StatusNotFound,
	apperrors.ErrCodeConflict:         http.StatusConflict,
	apperrors.ErrCodeMethodNotAllowed: http.StatusMethodNotAllowed,
	apperrors.ErrCodeTimeout:          http.StatusGatewayTimeout,
}

// allowedMethods is advertised on 405 responses.
const allowedMethods = "GET, HEAD, POST, PUT, DELETE"

// RenderError writes err as a JSON error response.
// AppErrors keep their message and field errors; anything else is logged and reported as an internal error.
func RenderError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		renderInternal(w, r, err, logger)
		return
	}

	status, ok := errorStatus[appErr.Code]
	if !ok {
		renderInternal(w, r, err, logger)
		return
	}
	if status == http.StatusMethodNotAllowed {
		w.Header().Set("Allow", allowedMethods)
	}
	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(appErr.Code),
		Err:     errors.New(appErr.Message),
		Fields:  appErr.FieldErrors(),
	})
}

func renderInternal(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(r.Context(), "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	WriteError(w, ErrorParams{
		Code:    http.StatusInternalServerError,
		ErrCode: string(apperrors.ErrCodeInternal),
		Err:     errors.New("internal error"),
	})
}
