package worker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCreateNotification(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := postJSON(t, svc, "/api/notifications", CreateNotificationRequest{
		Type:    "plan_approved",
		Title:   "Plan approved",
		Message: "login-page is ready to implement",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Greater(t, body["id"].(float64), float64(0))
	assert.Equal(t, "plan_approved", body["type"])
	assert.Equal(t, float64(0), body["is_read"])
}

func TestHandleCreateNotification_Validation(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	tests := []struct {
		name string
		req  CreateNotificationRequest
		want int
	}{
		{"missing title", CreateNotificationRequest{Type: "x", Message: "m"}, http.StatusBadRequest},
		{"missing type", CreateNotificationRequest{Title: "t", Message: "m"}, http.StatusBadRequest},
		{"title at limit", CreateNotificationRequest{Type: "x", Title: strings.Repeat("a", 500), Message: "m"}, http.StatusCreated},
		{"title over limit", CreateNotificationRequest{Type: "x", Title: strings.Repeat("a", 501), Message: "m"}, http.StatusBadRequest},
		{"message at limit", CreateNotificationRequest{Type: "x", Title: "t", Message: strings.Repeat("b", 2000)}, http.StatusCreated},
		{"message over limit", CreateNotificationRequest{Type: "x", Title: "t", Message: strings.Repeat("b", 2001)}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, svc, "/api/notifications", tt.req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleListNotifications(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		rec := postJSON(t, svc, "/api/notifications", CreateNotificationRequest{
			Type: "info", Title: "t", Message: "m",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["count"])

	// Mark everything read: the default list goes empty, include_read keeps all
	rec = postJSON(t, svc, "/api/notifications/read-all", struct{}{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["updated"])

	req = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec = httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])

	req = httptest.NewRequest(http.MethodGet, "/api/notifications?include_read=true", nil)
	rec = httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	assert.Equal(t, float64(3), decodeBody(t, rec)["count"])
}

func TestHandleMarkNotificationRead(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := postJSON(t, svc, "/api/notifications", CreateNotificationRequest{
		Type: "info", Title: "t", Message: "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decodeBody(t, rec)["id"].(float64))

	req := httptest.NewRequest(http.MethodPatch, "/api/notifications/"+itoa(id)+"/read", nil)
	rec = httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	// Unknown id is a no-op success
	req = httptest.NewRequest(http.MethodPatch, "/api/notifications/99999/read", nil)
	rec = httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Non-numeric id is a client error
	req = httptest.NewRequest(http.MethodPatch, "/api/notifications/abc/read", nil)
	rec = httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil)
	rec = httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}
