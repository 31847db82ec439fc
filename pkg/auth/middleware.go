package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Request headers carrying the credentials
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-API-Key"
	BearerPrefix        = "Bearer "
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Middleware, if any
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return c, ok
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

type errorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Middleware verifies every request before handing it to next. The body is
// read in full, up to the verifier's body cap, for hashing and replaced so next can read it again. Verified
// claims are available through ClaimsFromContext.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get(HeaderAuthorization))
		if !ok {
			writeUnauthorized(w, ErrMissingToken.Error())
			return
		}

		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, v.maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "Failed to read request body", http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		claims, err := v.Verify(r.Context(), token, VerifyRequest{
			Path:   r.URL.RequestURI(),
			Body:   body,
			APIKey: r.Header.Get(HeaderAPIKey),
		})
		if err != nil {
			var verr *VerificationError
			if errors.As(err, &verr) {
				v.logger.Sugar().Infow("Rejected request", "path", r.URL.Path, "reason", verr.Reason.Error())
				writeUnauthorized(w, verr.Reason.Error())
				return
			}
			v.logger.Sugar().Errorw("Token verification error", "path", r.URL.Path, "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims)))
	})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{Message: message, Code: http.StatusUnauthorized})
}
