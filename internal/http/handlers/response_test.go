package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/http/middleware"
	"github.com/tbourn/restaurant-backoffice/internal/services"
)

func TestFail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	lg := zerolog.New(&buf)

	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set("logger", &lg)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) { fail(c, http.StatusInternalServerError, api.CodeInternal, "kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(api.HeaderRequestID, "rid-500")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != api.CodeInternal || resp.Message != "kaboom" || resp.Fields != nil {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func TestFail_4xxNotLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	lg := zerolog.New(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("logger", &lg); c.Next() })
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, api.CodeNotFound, "nope") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx must not be logged here: %s", buf.String())
	}
}

func TestWriteError_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"name": "is required"}}, 422, api.CodeValidationFailed},
		{"wrapped validation", fmt.Errorf("create: %w", &services.ValidationError{Fields: map[string]string{"x": "y"}}), 422, api.CodeValidationFailed},
		{"sort", fmt.Errorf("%w: cannot sort by %q", services.ErrInvalidSort, "x"), 400, api.CodeBadRequest},
		{"filter", services.ErrInvalidFilter, 400, api.CodeBadRequest},
		{"body", fmt.Errorf("%w: EOF", errBadBody), 400, api.CodeBadRequest},
		{"too large", &http.MaxBytesError{Limit: 10}, 413, ErrCodeTooLarge},
		{"not found", services.ErrNotFound, 404, api.CodeNotFound},
		{"other", errors.New("disk on fire"), 500, api.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			writeError(c, tc.err)

			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body.Code != tc.code {
				t.Fatalf("code=%q want %q", body.Code, tc.code)
			}
			if tc.status == 422 && len(body.Fields) == 0 {
				t.Fatalf("fields missing")
			}
		})
	}
}
