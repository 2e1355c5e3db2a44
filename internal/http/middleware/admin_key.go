package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const (
	HeaderAdminKey = "X-Admin-Key"
	ctxAdminID     = "admin_id"
)

// AdminIDFromCtx returns the identity set by AdminKeyMiddleware.
func AdminIDFromCtx(c echo.Context) (string, bool) {
	id, ok := c.Get(ctxAdminID).(string)
	return id, ok && id != ""
}

// AdminKeyMiddleware authenticates requests using the X-Admin-Key header against the configured keys.
// The matched key's position becomes the admin identity used for rate limiting.
func AdminKeyMiddleware(keys []string) echo.MiddlewareFunc {
	valid := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid = append(valid, []byte(k))
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get(HeaderAdminKey))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing admin key"})
			}
			for i, v := range valid {
				if subtle.ConstantTimeCompare([]byte(key), v) == 1 {
					c.Set(ctxAdminID, "admin-"+strconv.Itoa(i))
					return next(c)
				}
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin key"})
		}
	}
}
