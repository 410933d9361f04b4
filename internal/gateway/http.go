package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/sessiongate-go/internal/client"
	"github.com/lk2023060901/sessiongate-go/internal/json"
	"github.com/lk2023060901/sessiongate-go/pkg/log"
	"github.com/lk2023060901/sessiongate-go/pkg/metrics"
	"github.com/lk2023060901/sessiongate-go/pkg/util/serr"
)

// apiError is the error body of the send endpoints. Error carries the HTTP
// status code; Detail carries the underlying error text on 500s.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"erro,omitempty"`
}

type textRequest struct {
	Sender  string `json:"sender"`
	Number  string `json:"number"`
	Content string `json:"content"`
}

type buttonsRequest struct {
	Sender  string `json:"sender"`
	Number  string `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
	// Buttons arrives as a JSON array encoded into a string field.
	Buttons string `json:"buttons"`
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   http.StatusBadRequest,
			Message: "malformed request body",
		})
		return
	}

	s.dispatchSend(w, r, "text", req.Sender, func(ctx context.Context, cli client.Client) error {
		return cli.SendText(ctx, req.Number, req.Content)
	})
}

func (s *Server) handleButtons(w http.ResponseWriter, r *http.Request) {
	var req buttonsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   http.StatusBadRequest,
			Message: "malformed request body",
		})
		return
	}

	var buttons []client.Button
	if err := json.Unmarshal([]byte(req.Buttons), &buttons); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   http.StatusBadRequest,
			Message: "malformed buttons payload",
		})
		return
	}

	s.dispatchSend(w, r, "buttons", req.Sender, func(ctx context.Context, cli client.Client) error {
		return cli.SendButtons(ctx, req.Number, req.Title, buttons, req.Content)
	})
}

// dispatchSend resolves the sender session and runs the send on the worker
// pool, bounded by the configured send timeout.
func (s *Server) dispatchSend(w http.ResponseWriter, r *http.Request, kind, sender string, send func(ctx context.Context, cli client.Client) error) {
	h, ok := s.registry.Get(sender)
	if !ok {
		metrics.SendTotal.WithLabelValues(kind, metrics.StatusFail).Inc()
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   http.StatusBadRequest,
			Message: fmt.Sprintf("The sender: %s is not found!", sender),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SendTimeout)
	defer cancel()

	result := make(chan error, 1)
	if err := s.pool.Submit(func() {
		result <- send(ctx, h.Client)
	}); err != nil {
		// Pool saturated or released; report as a send failure.
		result <- err
	}

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		metrics.SendTotal.WithLabelValues(kind, metrics.StatusFail).Inc()
		log.Ctx(r.Context()).Warn("send failed",
			zap.String(log.FieldNameSession, sender),
			zap.String("kind", kind),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:   http.StatusInternalServerError,
			Message: "Error when sending",
			Detail:  err.Error(),
		})
		return
	}

	metrics.SendTotal.WithLabelValues(kind, metrics.StatusOK).Inc()
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")
	name := r.URL.Query().Get("name")
	if sender == "" || name == "" {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   http.StatusBadRequest,
			Message: "sender and name are required",
		})
		return
	}

	group, err := s.manager.FindGroupByName(r.Context(), sender, name)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, serr.ErrSessionNotFound):
			status = http.StatusBadRequest
		case errors.Is(err, serr.ErrGroupNotFound):
			status = http.StatusNotFound
		}
		writeJSON(w, status, apiError{
			Error:   status,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, group)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.RatedWarn(10, "failed to write response", zap.Error(err))
	}
}
