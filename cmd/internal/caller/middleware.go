package caller

import (
	"log/slog"
	"net/http"
	"strings"

	"eatsoon/cmd/internal/fnerr"
)

// AppCheckHeader carries the attestation token.
const AppCheckHeader = "X-Firebase-AppCheck"

// RequireAppCheck rejects requests whose attestation token does not verify.
// Rejected requests never reach next.
func RequireAppCheck(next http.Handler, v *Verifier, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := v.VerifyAppCheck(r.Header.Get(AppCheckHeader)); err != nil {
			log.Warn("caller.appcheck.reject", "path", r.URL.Path, "err", err)
			fnerr.WriteHTTP(w, fnerr.Unauthenticated("Unauthenticated"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithBearerIdentity attaches the verified caller to the request context when
// a valid bearer ID token is present. Invalid or missing tokens leave the
// request anonymous; the operation decides how to report that.
func WithBearerIdentity(next http.Handler, v *Verifier, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		id, err := v.VerifyIDToken(raw)
		if err != nil {
			log.Info("caller.id_token.invalid", "path", r.URL.Path, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}
