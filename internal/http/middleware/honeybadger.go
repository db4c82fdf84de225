package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/rs/zerolog/log"
)

// NotifyFunc matches honeybadger.Notify.
type NotifyFunc func(err any, extra ...any) (string, error)

// HoneybadgerOptions configures ErrorReporter.
type HoneybadgerOptions struct {
	APIKey string
	Env    string
	// Notify overrides honeybadger.Notify; used by tests.
	Notify NotifyFunc
}

// ErrorReporter reports panics and 5xx responses to Honeybadger. Without an
// API key (and no Notify override) it is a pass-through. Panics are
// re-raised so Recovery, installed before it, still writes the response.
func ErrorReporter(opts HoneybadgerOptions) gin.HandlerFunc {
	notify := opts.Notify
	if notify == nil {
		if opts.APIKey == "" {
			log.Info().Msg("honeybadger disabled: HONEYBADGER_API_KEY not set")
			return func(c *gin.Context) { c.Next() }
		}
		honeybadger.Configure(honeybadger.Configuration{APIKey: opts.APIKey, Env: opts.Env})
		notify = honeybadger.Notify
		log.Info().Str("env", opts.Env).Msg("honeybadger error reporting enabled")
	}

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				_, _ = notify(fmt.Sprintf("panic: %s %s: %v", c.Request.Method, routeOf(c), rec),
					c.Request,
					honeybadger.Context{"stack": string(debug.Stack()), "request_id": RequestIDFrom(c), "user_id": UserID(c)},
					honeybadger.Tags{"panic", "http"})
				panic(rec)
			}
		}()

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			_, _ = notify(fmt.Sprintf("HTTP %d: %s %s", status, c.Request.Method, routeOf(c)),
				c.Request,
				honeybadger.Context{"request_id": RequestIDFrom(c), "errors": c.Errors.String()},
				honeybadger.Tags{"5xx", "http"})
		}
	}
}

func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
