package transport

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const maxLoggedBody = 2048

// requestLogger logs one line per request with the censored request
// body attached. Raw bodies can carry passwords, so they never reach
// the log unfiltered.
func (s *HTTPServer) requestLogger() echo.MiddlewareFunc {
	return middleware.BodyDumpWithConfig(middleware.BodyDumpConfig{
		Handler: func(c echo.Context, reqBody, resBody []byte) {
			body := truncateBody(censorBody(reqBody), maxLoggedBody)
			s.logger.Infow("request",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"status", c.Response().Status,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"body", string(body),
				"ts", time.Now().Format(time.RFC3339),
			)
		},
	})
}

// truncateBody caps the logged body without splitting a multi-byte
// rune at the cut point.
func truncateBody(body []byte, max int) []byte {
	if len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

// censorBody blanks the password field of a JSON body. Non-JSON bodies
// pass through untouched.
func censorBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	m := map[string]interface{}{}
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	if _, ok := m["password"]; !ok {
		return body
	}
	m["password"] = "$censored"

	censored, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return censored
}
