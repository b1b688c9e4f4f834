package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	SessionCookieName = "introeval_sid"
	sessionLocalsKey  = "sessionID"
)

// Session makes sure every request carries a browser session id, issuing
// a fresh cookie when the request has none or an unparsable one.
func Session(secure bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(SessionCookieName)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     SessionCookieName,
				Value:    id,
				Path:     "/",
				Expires:  time.Now().Add(30 * 24 * time.Hour),
				HTTPOnly: true,
				Secure:   secure,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		c.Locals(sessionLocalsKey, id)
		return c.Next()
	}
}

// SessionID returns the id set by Session, or "" outside it.
func SessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(sessionLocalsKey).(string)
	return id
}
