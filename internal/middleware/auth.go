package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"barber-booking-api/internal/auth"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity stores the caller on ctx.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller, if one was authenticated.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

func bearer(v string) string {
	return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
}

// grpcIdentity: no token is anonymous, a bad token is rejected.
func grpcIdentity(ctx context.Context, secret string) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, nil
	}
	vals := md.Get("authorization")
	if len(vals) == 0 || bearer(vals[0]) == "" {
		return ctx, nil
	}
	claims, err := auth.ParseToken(bearer(vals[0]), secret)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "bad token")
	}
	return WithIdentity(ctx, claims.Identity()), nil
}

// Auth attaches the caller's identity to unary calls. The booking hub is open
// to anonymous callers, so only an invalid token fails the call.
func Auth(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		ctx, err := grpcIdentity(ctx, secret)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func StreamAuth(secret string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		ctx, err := grpcIdentity(ss.Context(), secret)
		if err != nil {
			return err
		}
		return next(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

// RequireAuth rejects REST requests without a valid bearer token.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r.Header.Get("Authorization"))
			if raw == "" {
				deny(w, http.StatusUnauthorized, "no token")
				return
			}
			claims, err := auth.ParseToken(raw, secret)
			if err != nil {
				deny(w, http.StatusUnauthorized, "bad token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.Admin {
			deny(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
