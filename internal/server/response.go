package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/logger"
)

type errorBody struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Path       string `json:"path,omitempty"`
	Bucket     string `json:"bucket,omitempty"`
	Key        string `json:"key,omitempty"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Phase      string `json:"phase,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errJobNotFound):
		return http.StatusNotFound
	case errs.IsAuth(err):
		return http.StatusForbidden
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsInvalidInput(err):
		return http.StatusBadRequest
	case errs.IsLocalIO(err):
		return http.StatusUnprocessableEntity
	case errs.IsCancelled(err), errs.IsPartialRename(err):
		return http.StatusConflict
	case errs.IsTransport(err), errs.IsRemoteAPI(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	body := errorBody{
		Kind:    errs.KindOf(err).String(),
		Message: err.Error(),
	}
	var e *errs.Error
	if errors.As(err, &e) {
		body.Message = e.Message
		body.Path = e.Path
		body.Bucket = e.Bucket
		body.Key = e.Key
		body.Code = e.Code
		body.StatusCode = e.StatusCode
		body.Phase = e.Phase
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		})
	}

	writeJSON(w, status, map[string]errorBody{"error": body})
}

func badRequest(msg string) error {
	return errs.New(errs.ErrKindInvalidInput, msg)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err)
	}
	return nil
}
