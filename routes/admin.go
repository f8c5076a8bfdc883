package routes

import (
	"net/http"
	"strings"

	"imagerelay/logger"
	"imagerelay/utils"
)

// AdminSubject is the subject an admin bearer token must carry.
const AdminSubject = "admin"

// requireAdmin demands a bearer HS256 token signed with secret. An empty
// secret leaves next unprotected.
func requireAdmin(secret []byte, next http.HandlerFunc) http.HandlerFunc {
	if len(secret) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		if _, err := utils.VerifyToken(token, utils.VerifyConfig{
			SecretKey:       secret,
			ExpectedSubject: AdminSubject,
		}); err != nil {
			logger.Warnf("Rejected admin token from %s: %v", r.RemoteAddr, err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}
