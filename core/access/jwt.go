// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package access

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/tabular/core/logger"
)

// JwtMiddlewareBuilder is a helper builder for the JWT middleware
type JwtMiddlewareBuilder struct {
	// Key is the HMAC signing key accepted for bearer tokens. This is mandatory.
	Key []byte
	// Issuer is the accepted issuer for the token. Optional, if empty any
	// issuer is accepted.
	Issuer string
}

// NewJwtMiddleware returns a middleware handler to validate JWT bearer token.
//
// Java-Web-Token (JWT) are accepted as "Authorization: Bearer"
// header or as "Tabular-JWT"-cookie.
//
// The token's "sub" claim becomes the user id, the "roles" claim carries the
// declared roles, either as a JSON array or as a comma-separated string.
// Requests without any token pass through anonymously, they act with the
// implicit "public" role only. A token which is present but invalid ends the
// request with http.StatusUnauthorized.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	if len(jmb.Key) == 0 {
		panic("jwt middleware: key is missing")
	}
	authCache := NewAuthorizationCache()

	authorizationFromToken := func(tokenString string) (*Authorization, error) {
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return jmb.Key, nil
		})
		if err != nil {
			return nil, err
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			return nil, fmt.Errorf("invalid token")
		}
		if jmb.Issuer != "" {
			if issuer, _ := claims["iss"].(string); issuer != jmb.Issuer {
				return nil, fmt.Errorf("unexpected issuer")
			}
		}

		auth := Authorization{}
		auth.UserID, _ = claims["sub"].(string)
		switch roles := claims["roles"].(type) {
		case string:
			auth.Roles = strings.Split(roles, ",")
		case []interface{}:
			for _, role := range roles {
				if s, ok := role.(string); ok {
					auth.Roles = append(auth.Roles, s)
				}
			}
		}
		return &auth, nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rlog := logger.FromContext(r.Context())

			tokenString := ""
			if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
				tokenString = strings.TrimPrefix(bearer, "Bearer ")
			} else if cookie, err := r.Cookie("Tabular-JWT"); err == nil {
				tokenString = cookie.Value
			}

			if tokenString == "" {
				// anonymous request
				h.ServeHTTP(w, r)
				return
			}

			auth := authCache.Read(tokenString)
			if auth == nil {
				var err error
				auth, err = authorizationFromToken(tokenString)
				if err != nil {
					rlog.WithError(err).Debugln("invalid bearer token")
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				authCache.Write(tokenString, auth)
			}

			ctx := auth.ContextWithAuthorization(r.Context())
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, auth.UserID)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
