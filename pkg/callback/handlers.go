package callback

import (
	"errors"
	"io"
	"net/http"
)

func (s *Server) handleTxSignRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TxSignRequest
	if !s.authenticate(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		http.Error(w, "requestId is required", http.StatusBadRequest)
		return
	}

	s.logger.Sugar().Infow("Received transaction sign request",
		"request_id", req.RequestID,
		"tx_id", req.TxID,
		"operation", req.Operation,
		"asset", req.Asset,
	)

	action, err := s.manager.Decide(r.Context(), &req)
	if err != nil {
		s.logger.Sugar().Errorw("Transaction approval process failed", "request_id", req.RequestID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := &Response{Action: action, RequestID: req.RequestID}
	if action == ActionReject {
		resp.RejectionReason = DefaultRejectionReason
	}
	s.respond(w, resp)
}

func (s *Server) handleConfigChangeSignRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ConfigChangeSignRequest
	if !s.authenticate(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		http.Error(w, "requestId is required", http.StatusBadRequest)
		return
	}

	s.logger.Sugar().Infow("Received config change sign request", "request_id", req.RequestID, "type", req.Type)
	s.respond(w, &Response{Action: ActionIgnore, RequestID: req.RequestID})
}

// authenticate reads and verifies the body into out. On failure it writes the
// error response and returns false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}

	if err := s.authenticator.Authenticate(body, out); err != nil {
		if errors.Is(err, ErrTokenExpired) {
			s.logger.Sugar().Warnw("Co-signer token has expired", "path", r.URL.Path)
			http.Error(w, "Token has expired.", http.StatusUnauthorized)
			return false
		}
		s.logger.Sugar().Warnw("Failed to authenticate co-signer request", "path", r.URL.Path, "error", err)
		http.Error(w, "Failed to authenticate.", http.StatusForbidden)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, resp *Response) {
	signed, err := s.authenticator.SignResponse(resp)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to sign callback response", "request_id", resp.RequestID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Sugar().Infow("Answering co-signer", "request_id", resp.RequestID, "action", resp.Action)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(signed))
}
