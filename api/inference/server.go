// Package inference serves the /ping and /invocations endpoints a batch
// transform job calls inside the model container.
package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"sagemaker-orchestrator/core/models"
)

const maxPayloadBytes = 6 << 20

// Content types accepted on /invocations. Both carry one JSON record per line.
var jsonLinesTypes = map[string]bool{
	"application/json":      true,
	"application/jsonlines": true,
}

// Predictor turns JSON records into one prediction per record
type Predictor interface {
	Predict(ctx context.Context, records []json.RawMessage) ([]json.RawMessage, error)
}

// Handler serves predictions
type Handler struct {
	predictor Predictor
}

// NewRouter creates the predictor's HTTP routes
func NewRouter(p Predictor) *mux.Router {
	h := &Handler{predictor: p}
	r := mux.NewRouter()
	r.HandleFunc("/ping", h.Ping).Methods("GET", "POST")
	r.HandleFunc("/invocations", h.Invocations).Methods("GET", "POST")
	return r
}

// Ping handles /ping
func (h *Handler) Ping(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "Status okay")
}

// Invocations handles /invocations: newline-delimited JSON records in,
// newline-delimited predictions out
func (h *Handler) Invocations(w http.ResponseWriter, r *http.Request) {
	logger := zap.S().Named("predictor")

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !jsonLinesTypes[mediaType] {
		logger.Debugf("Bad request. Received content of type %q when expected JSON Lines", r.Header.Get("Content-Type"))
		writeMessage(w, http.StatusUnsupportedMediaType, "This predictor only supports JSON Lines data")
		return
	}

	records, err := readRecords(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(records) == 0 {
		writeMessage(w, http.StatusBadRequest, "no records in request body")
		return
	}

	logger.Debugf("Making predictions on %d records", len(records))
	predictions, err := h.predictor.Predict(r.Context(), records)
	if err != nil {
		logger.Errorf("Prediction failed: %v", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(predictions) != len(records) {
		logger.Errorf("Predictor returned %d predictions for %d records", len(predictions), len(records))
		writeMessage(w, http.StatusInternalServerError, "predictor output does not match its input")
		return
	}

	var buf bytes.Buffer
	for _, p := range predictions {
		buf.Write(p)
		buf.WriteByte('\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// readRecords splits a JSON Lines body; blank lines are skipped
func readRecords(body io.Reader) ([]json.RawMessage, error) {
	var records []json.RawMessage
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxPayloadBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !json.Valid(raw) {
			return nil, models.NewConfigError(fmt.Sprintf("line %d is not valid JSON", line), nil)
		}
		records = append(records, json.RawMessage(append([]byte(nil), raw...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return records, nil
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
