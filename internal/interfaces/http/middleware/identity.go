package middleware

import (
	"github.com/gin-gonic/gin"
)

// Context keys for subject identity
const (
	UserIDKey    = "subject_user_id"
	SessionIDKey = "subject_session_id"
)

// SubjectIdentity extracts the experiment subject identity from the
// X-User-ID and X-Session-ID headers and stores it on the request
// context. Both headers are optional; tracking endpoints that need an
// identity enforce it themselves.
func SubjectIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set(UserIDKey, userID)
		}
		if sessionID := c.GetHeader("X-Session-ID"); sessionID != "" {
			c.Set(SessionIDKey, sessionID)
		}
		c.Next()
	}
}

// GetUserID returns the subject user ID from the context, if any
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetSessionID returns the subject session ID from the context, if any
func GetSessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}
