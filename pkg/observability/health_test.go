package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	rec := httptest.NewRecorder()
	checker.Liveness(rec, httptest.NewRequest("GET", "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != StatusHealthy {
		t.Errorf("status = %v", body["status"])
	}
}

func TestReadinessNoBackends(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest("GET", "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no backends configured", rec.Code)
	}
}

func TestCheckStoreUnhealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("overall status = %q, want unhealthy when the identity store is down", status.Status)
	}
	dep := status.Dependencies["identity_store"]
	if dep.Status != StatusUnhealthy || dep.Message == "" {
		t.Errorf("identity_store = %+v", dep)
	}

	rec := httptest.NewRecorder()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	checker.Readiness(rec, httptest.NewRequest("GET", "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503", rec.Code)
	}
}

func TestCheckRedisOnlyDegrades(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(nil, client)
	status := checker.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Fatalf("status = %q with redis up", status.Status)
	}

	// Token issuance works without redis, so a dead cache must not fail
	// readiness.
	mr.Close()
	status = checker.Check(context.Background())
	if status.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded with redis down", status.Status)
	}
	if dep := status.Dependencies["redis"]; dep.Status != StatusUnhealthy {
		t.Errorf("redis dependency = %+v", dep)
	}
}
