package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping() error {
	return s.err
}

func TestSystemHandler_Health(t *testing.T) {
	t.Run("reports ok when database responds", func(t *testing.T) {
		h := NewSystemHandler(&stubPinger{})
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		h.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})

	t.Run("reports degraded when database is unreachable", func(t *testing.T) {
		h := NewSystemHandler(&stubPinger{err: errors.New("connection refused")})
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		h.Health(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"database":"unreachable"`)
	})
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.Ping(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Marketplace Experiments API")
}
