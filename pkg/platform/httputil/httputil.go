package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/requestcontext"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
// Internal failures never expose their message.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		status := DomainCodeToHTTPStatus(domainErr.Code)
		if status != http.StatusInternalServerError {
			response := map[string]string{
				"error": DomainCodeToHTTPCode(domainErr.Code),
			}
			if domainErr.Message != "" {
				response["error_description"] = domainErr.Message
			}
			WriteJSON(w, status, response)
			return
		}
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound, dErrors.CodeSessionNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation,
		dErrors.CodeInvalidPurpose, dErrors.CodeInvalidTTL:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeAlreadyTerminal, dErrors.CodeSessionAlreadyUsed:
		return http.StatusConflict
	case dErrors.CodeSessionExpired, dErrors.CodeSessionCancelled:
		return http.StatusGone
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeConsentDenied:
		return http.StatusForbidden
	case dErrors.CodeAccountLocked:
		return http.StatusLocked
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeAuthenticationFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the error string
// written in JSON responses. Key and cipher failures collapse to
// internal_error so clients learn nothing about key state.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeTimeout:
		return "timeout"
	case dErrors.CodeAuthenticationFailure:
		return "payload_corrupted"
	case dErrors.CodeEncryptionFailure, dErrors.CodeMissingKey, dErrors.CodeInvalidKeyLength, dErrors.CodeInternal:
		return "internal_error"
	case dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeUnauthorized, dErrors.CodeForbidden,
		dErrors.CodeConsentDenied, dErrors.CodeInvalidPurpose, dErrors.CodeInvalidTTL,
		dErrors.CodeSessionNotFound, dErrors.CodeSessionExpired, dErrors.CodeSessionAlreadyUsed,
		dErrors.CodeSessionCancelled, dErrors.CodeAccountLocked, dErrors.CodeAlreadyTerminal:
		return string(code)
	default:
		return "internal_error"
	}
}

// RequirePrincipal extracts the authenticated identity from context.
// Returns a domain error suitable for HTTP response on failure.
func RequirePrincipal(ctx context.Context, logger *slog.Logger) (string, error) {
	principal := requestcontext.Principal(ctx)
	if principal == "" {
		if logger != nil {
			logger.ErrorContext(ctx, "principal missing from context despite auth middleware",
				"request_id", requestcontext.RequestID(ctx))
		}
		return "", dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return principal, nil
}
