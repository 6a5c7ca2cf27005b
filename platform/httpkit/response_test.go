package httpkit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"callsync_agent/platform/apperr"

	"github.com/gin-gonic/gin"
)

func handleErrorStatus(t *testing.T, err error) (int, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	handled := HandleError(c, err)
	return rec.Code, handled
}

func TestHandleErrorNil(t *testing.T) {
	if _, handled := handleErrorStatus(t, nil); handled {
		t.Fatal("nil error reported as handled")
	}
}

func TestHandleErrorDomainError(t *testing.T) {
	status, handled := handleErrorStatus(t, apperr.RateLimited("slow down"))
	if !handled || status != http.StatusTooManyRequests {
		t.Errorf("status = %d, handled = %v, want 429 handled", status, handled)
	}
}

func TestHandleErrorWrappedDomainError(t *testing.T) {
	// Callers wrap backend errors for context; the kind must survive.
	err := fmt.Errorf("assign self: %w", apperr.RateLimited("slow down"))
	status, handled := handleErrorStatus(t, err)
	if !handled || status != http.StatusTooManyRequests {
		t.Errorf("status = %d, handled = %v, want 429 handled", status, handled)
	}
}

func TestHandleErrorPlainError(t *testing.T) {
	status, handled := handleErrorStatus(t, fmt.Errorf("boom"))
	if !handled || status != http.StatusBadRequest {
		t.Errorf("status = %d, handled = %v, want 400 handled", status, handled)
	}
}
