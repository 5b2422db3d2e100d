package invitation

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"eatsoon/cmd/internal/caller"
	"eatsoon/cmd/internal/fnerr"
)

// AcceptPath is the callable route for invitation acceptance.
const AcceptPath = "/callable/acceptFamilyInvitation"

const defaultMaxBodyBytes = 16 << 10

// Handler exposes acceptance as a callable HTTP endpoint.
type Handler struct {
	svc          *Service
	log          *slog.Logger
	maxBodyBytes int64
}

// NewHandler constructs a Handler. maxBodyBytes <= 0 selects a small default.
func NewHandler(svc *Service, log *slog.Logger, maxBodyBytes int64) (*Handler, error) {
	if svc == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{svc: svc, log: log, maxBodyBytes: maxBodyBytes}, nil
}

// Router is the part of http.ServeMux and chi.Router that Register needs.
type Router interface {
	Handle(pattern string, h http.Handler)
}

// Register wires the callable route onto mux. wrap, when non-nil, decorates
// the handler (attestation and identity middleware).
func (h *Handler) Register(mux Router, wrap func(http.Handler) http.Handler) {
	if h == nil || mux == nil {
		return
	}
	var handler http.Handler = http.HandlerFunc(h.handleAccept)
	if wrap != nil {
		handler = wrap(handler)
	}
	mux.Handle(AcceptPath, handler)
}

type callableRequest struct {
	Data map[string]json.RawMessage `json:"data"`
}

type callableResponse struct {
	Result any `json:"result"`
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	in := AcceptInput{Caller: caller.FromContext(r.Context())}

	// A body that does not decode leaves IDIsString false, so the service
	// still reports Unauthenticated before InvalidArgument.
	var req callableRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		h.log.Debug("invitation.accept.decode.fail", "err", err)
	} else if raw, ok := req.Data["invitationId"]; ok {
		in.InvitationID, in.IDIsString = decodeString(raw)
	}

	res, err := h.svc.Accept(r.Context(), in)
	if err != nil {
		fnerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, callableResponse{Result: res})
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return "", false
	}
	return *s, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// Ensure there is no extra data after the first JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
