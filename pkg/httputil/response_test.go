package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	return body
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteSuccess(rec, map[string]string{"user_id": "u1"}); err != nil {
		t.Fatalf("WriteSuccess() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["user_id"] != "u1" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteCreated(rec, map[string]string{"id": "r1"}); err != nil {
		t.Fatalf("WriteCreated() error = %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestErrorBodyShape(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "error message",
			write:      func(w http.ResponseWriter) { WriteErrorMessage(w, http.StatusConflict, "external_auth_conflict") },
			wantStatus: http.StatusConflict,
			wantCode:   "external_auth_conflict",
		},
		{
			name:       "validation",
			write:      func(w http.ResponseWriter) { WriteValidationError(w, "assertion is required") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "assertion is required",
		},
		{
			name:       "unauthorized",
			write:      func(w http.ResponseWriter) { WriteUnauthorized(w, "invalid or expired token") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid or expired token",
		},
		{
			name:       "internal",
			write:      func(w http.ResponseWriter) { WriteInternalError(w) },
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeErrorBody(t, rec)
			if body["error"] != tt.wantCode {
				t.Errorf("error = %q, want %q", body["error"], tt.wantCode)
			}
			if len(body) != 1 {
				t.Errorf("body has extra keys: %v", body)
			}
		})
	}
}
