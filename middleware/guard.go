package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	medauth "github.com/sentinelmed/medauth"
)

type authResultContextKey struct{}

func AuthResultFromContext(ctx context.Context) (*medauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*medauth.AuthResult)
	return res, ok
}

func Guard(engine *medauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(withClientInfo(r), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthority wraps Guard and additionally requires a specific
// authority on the validated claims.
func RequireAuthority(engine *medauth.Engine, authority string) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || !slices.Contains(res.Authorities, authority) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// GuardRecordAccess protects per-patient record routes. patientID extracts
// the target patient from the request (path or query); the engine then
// revalidates the caller's standing grant against that patient.
func GuardRecordAccess(engine *medauth.Engine, patientID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || patientID == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.ValidateRecordAccess(withClientInfo(r), token, patientID(r))
			if err != nil {
				status := http.StatusUnauthorized
				if err == medauth.ErrAccessDenied {
					status = http.StatusForbidden
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withClientInfo(r *http.Request) context.Context {
	ctx := medauth.WithClientIP(r.Context(), clientIP(r))
	return medauth.WithUserAgent(ctx, r.UserAgent())
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
