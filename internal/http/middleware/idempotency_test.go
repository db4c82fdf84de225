package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/restaurant-backoffice/internal/api"
)

func TestIdempotencyHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}

	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key should read as absent")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("expected IsReplay=true")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false for non-bool")
	}

	if got := IdempotencyScope(c); got != "/" {
		t.Fatalf("scope fallback = %q", got)
	}
}

func TestIdempotencyValidator_PassThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}

	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/brands", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("no key expected")
		}
		c.Status(http.StatusCreated)
	})
	r.PATCH("/brands/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/brands", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}

	// Methods outside the list ignore the header, even an invalid one.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/brands/1", nil)
	req.Header.Set(api.HeaderIdempotencyKey, "bad key!")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if called {
		t.Fatalf("lookup must not run without a key")
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), IdempotencyValidator(IdempotencyOptions{MaxLen: 8, Pattern: regexp.MustCompile(`^[a-z-]+$`)}, nil))
	r.POST("/x", func(c *gin.Context) { t.Fatalf("handler must not run") })

	for _, key := range []string{"way-too-long-key", "ABC"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(api.HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%q: status=%d", key, w.Code)
		}
		var body api.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Code != api.CodeBadRequest || body.RequestID == "" || body.Fields[api.HeaderIdempotencyKey] == "" {
			t.Fatalf("unexpected body: %+v", body)
		}
	}
}

func TestIdempotencyValidator_DefaultMaxLen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, nil))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(api.HeaderIdempotencyKey, strings.Repeat("a", 201))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestIdempotencyValidator_Lookup(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("miss", func(t *testing.T) {
		r := gin.New()
		lookup := func(_ context.Context, userID, scope, key string, now time.Time) (bool, error) {
			if userID != AnonymousUser || scope != "/api/v1/brands" || key != "key-1" || now.IsZero() {
				t.Fatalf("unexpected args: %q %q %q %v", userID, scope, key, now)
			}
			return false, nil
		}
		r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
		r.POST("/api/v1/brands", func(c *gin.Context) {
			if IsReplay(c) || IsRateBypass(c) {
				t.Fatalf("no replay expected")
			}
			if k, _ := GetIdempotencyKey(c); k != "key-1" {
				t.Fatalf("key not stashed: %q", k)
			}
			c.Status(http.StatusCreated)
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/brands", nil)
		req.Header.Set(api.HeaderIdempotencyKey, "key-1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("status=%d", w.Code)
		}
	})

	t.Run("hit uses route scope and caller", func(t *testing.T) {
		r := gin.New()
		r.Use(Identity())
		lookup := func(_ context.Context, userID, scope, key string, _ time.Time) (bool, error) {
			if userID != "u9" || scope != "/tables" || key != "k-9" {
				t.Fatalf("unexpected args: %q %q %q", userID, scope, key)
			}
			return true, nil
		}
		r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
		r.POST("/tables", func(c *gin.Context) {
			if !IsReplay(c) || !IsRateBypass(c) {
				t.Fatalf("expected replay and bypass")
			}
			c.Status(http.StatusCreated)
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/tables", nil)
		req.Header.Set(api.HeaderIdempotencyKey, "k-9")
		req.Header.Set(api.HeaderUserID, "u9")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("status=%d", w.Code)
		}
	})

	t.Run("lookup error is a miss", func(t *testing.T) {
		_ = captureLogger(t)
		r := gin.New()
		r.Use(IdempotencyValidator(IdempotencyOptions{}, func(context.Context, string, string, string, time.Time) (bool, error) {
			return false, errors.New("db down")
		}))
		r.POST("/x", func(c *gin.Context) {
			if IsReplay(c) {
				t.Fatalf("error must not mark replay")
			}
			c.Status(http.StatusCreated)
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(api.HeaderIdempotencyKey, "k")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("status=%d", w.Code)
		}
	})
}
