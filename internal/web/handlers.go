package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/ingest"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// ObjectCreatedResponse reports the invocations started by one delivery.
type ObjectCreatedResponse struct {
	Invocations []*ingest.Result `json:"invocations"`
	Error       *ErrorResponse   `json:"error,omitempty"`
}

// ChangeResponse reports how a change-stream batch was handled.
type ChangeResponse struct {
	Logged    int `json:"logged"`
	Malformed int `json:"malformed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"invocations": s.ingest.Status(),
	})
}

// handleObjectCreated runs one invocation per object in an S3 notification.
// The status is 200 when every invocation ran to completion, including ones
// with dead-lettered records. Otherwise it is the status of the first fatal
// error, so the trigger redelivers.
func (s *Server) handleObjectCreated(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, &food.MalformedEventError{Kind: "object-created", Reason: err.Error()})
		return
	}

	events, err := food.DecodeObjectCreated(body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	results, err := s.ingest.IngestAll(r.Context(), events)
	resp := ObjectCreatedResponse{Invocations: results}
	if err != nil {
		status := statusFor(err)
		e := newErrorResponse(err)
		resp.Error = &e
		logging.FromContext(r.Context()).Error("object-created delivery failed",
			"objects", len(events),
			"status", status,
			"error", err,
		)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "30")
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleIngest starts a single invocation from {"bucket": ..., "key": ...}.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, &food.MalformedEventError{Kind: "object-created", Reason: err.Error()})
		return
	}

	var ev food.RawUploadEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		respondError(w, r, &food.MalformedEventError{Kind: "object-created", Reason: err.Error()})
		return
	}

	res, err := s.ingest.Ingest(r.Context(), ev)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChange reports each item of a change-stream batch. Undecodable
// records are counted, never fatal.
func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, r, &food.MalformedEventError{Kind: "change", Reason: err.Error()})
		return
	}

	events, errs := food.DecodeChangeBatch(body)
	log := logging.FromContext(r.Context())
	for _, e := range errs {
		log.Warn("skipping change record", "error", e)
	}

	sum := s.observer.HandleBatch(r.Context(), events)
	writeJSON(w, http.StatusOK, ChangeResponse{
		Logged:    sum.Logged,
		Malformed: sum.Malformed + len(errs),
	})
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "invocationID")
	res, err := s.ingest.Result(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
}
