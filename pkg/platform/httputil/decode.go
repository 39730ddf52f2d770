package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "medshare/pkg/domain-errors"
)

// Normalizable requests trim and canonicalize their fields before validation.
type Normalizable interface {
	Normalize()
}

// Validatable requests check their own shape.
type Validatable interface {
	Validate() error
}

// DecodeJSON reads exactly one JSON object from the body. On failure it
// writes a 400 and returns false; callers just return.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := decodeBody(r.Body, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}

func decodeBody(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return dErrors.New(dErrors.CodeBadRequest, "request body too large")
		case errors.Is(err, io.EOF):
			return dErrors.New(dErrors.CodeBadRequest, "request body is empty")
		default:
			return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
		}
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeBadRequest, "request body must hold a single JSON object")
	}
	return nil
}

// Prepare normalizes then validates req. Plain validation errors become
// CodeValidation; domain errors keep their code.
func Prepare(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	v, ok := req.(Validatable)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.New(dErrors.CodeValidation, err.Error())
}

// DecodeAndPrepare decodes the body and runs Prepare on it.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, ctx, requestID)
	if !ok {
		return nil, false
	}

	if err := Prepare(req); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, err)
		return nil, false
	}

	return req, true
}
