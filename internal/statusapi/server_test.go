package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tonio1998/snsulms-sub001/internal/app"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
	"github.com/tonio1998/snsulms-sub001/internal/outbox"
	"github.com/tonio1998/snsulms-sub001/internal/syncer"
)

type fakeBackend struct {
	status     *app.Status
	statusErr  error
	syncRes    app.SyncResult
	drainRes   outbox.DrainResult
	reloadErr  error
	reloaded   []string
	foreground int
	background int
}

func (f *fakeBackend) Status(context.Context) (*app.Status, error) { return f.status, f.statusErr }
func (f *fakeBackend) Sync(context.Context) (app.SyncResult, error) {
	return f.syncRes, nil
}
func (f *fakeBackend) Drain(context.Context) (outbox.DrainResult, error) { return f.drainRes, nil }
func (f *fakeBackend) Reload(_ context.Context, task string) error {
	f.reloaded = append(f.reloaded, task)
	return f.reloadErr
}
func (f *fakeBackend) Foreground() { f.foreground++ }
func (f *fakeBackend) Background() { f.background++ }

func do(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestStatus(t *testing.T) {
	b := &fakeBackend{status: &app.Status{
		DeviceID: "d1",
		Online:   true,
		Pending:  3,
		Stalled:  2,
		Freshness: []app.Freshness{
			{Entity: "events", Label: "5 minutes ago"},
		},
	}}
	s := NewServer(":0", b, lms.NewNopLogger())

	rec, body := do(t, s, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", rec.Code)
	}
	if body["device_id"] != "d1" || body["online"] != true || body["pending"] != float64(3) {
		t.Errorf("body = %v", body)
	}
	if body["banner"] != "2 items failed to sync" {
		t.Errorf("banner = %v", body["banner"])
	}
	fresh := body["freshness"].([]any)[0].(map[string]any)
	if fresh["label"] != "5 minutes ago" {
		t.Errorf("freshness = %v", fresh)
	}
}

func TestStatus_Error(t *testing.T) {
	b := &fakeBackend{statusErr: errors.New("database is closed")}
	s := NewServer(":0", b, lms.NewNopLogger())

	rec, body := do(t, s, http.MethodGet, "/status")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("GET /status = %d, want 500", rec.Code)
	}
	if body["error"] != "database is closed" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestSyncAndDrain(t *testing.T) {
	b := &fakeBackend{
		syncRes: app.SyncResult{
			Drain:  outbox.DrainResult{Submitted: 2, Remaining: 1, Failed: 1},
			Resync: syncer.Report{Succeeded: []string{"events"}, Failed: map[string]error{"classes": errors.New("503")}},
		},
		drainRes: outbox.DrainResult{Skipped: true},
	}
	s := NewServer(":0", b, lms.NewNopLogger())

	rec, body := do(t, s, http.MethodPost, "/sync")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /sync = %d", rec.Code)
	}
	drain := body["drain"].(map[string]any)
	if drain["submitted"] != float64(2) || drain["remaining"] != float64(1) {
		t.Errorf("drain = %v", drain)
	}
	resync := body["resync"].(map[string]any)
	if resync["failed"].(map[string]any)["classes"] != "503" {
		t.Errorf("resync = %v", resync)
	}

	rec, body = do(t, s, http.MethodPost, "/drain/")
	if rec.Code != http.StatusOK || body["skipped"] != true {
		t.Errorf("POST /drain/ = %d %v, want 200 skipped", rec.Code, body)
	}
}

func TestReload(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "ok", wantCode: http.StatusOK},
		{name: "unknown task", err: fmt.Errorf("%w: grades", syncer.ErrUnknownTask), wantCode: http.StatusNotFound},
		{name: "upstream failure", err: errors.New("503 Service Unavailable"), wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{reloadErr: tt.err}
			s := NewServer(":0", b, lms.NewNopLogger())

			rec, body := do(t, s, http.MethodPost, "/reload/class_wall")
			if rec.Code != tt.wantCode {
				t.Errorf("POST /reload = %d, want %d (%v)", rec.Code, tt.wantCode, body)
			}
			if len(b.reloaded) != 1 || b.reloaded[0] != "class_wall" {
				t.Errorf("reloaded = %v", b.reloaded)
			}
			if tt.err != nil && !strings.Contains(body["error"].(string), tt.err.Error()) {
				t.Errorf("error = %v, want it to mention %q", body["error"], tt.err)
			}
		})
	}
}

func TestForegroundBackground(t *testing.T) {
	b := &fakeBackend{}
	s := NewServer(":0", b, lms.NewNopLogger())

	if rec, _ := do(t, s, http.MethodPost, "/foreground"); rec.Code != http.StatusNoContent {
		t.Errorf("POST /foreground = %d", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodPost, "/background"); rec.Code != http.StatusNoContent {
		t.Errorf("POST /background = %d", rec.Code)
	}
	if b.foreground != 1 || b.background != 1 {
		t.Errorf("foreground=%d background=%d, want 1 and 1", b.foreground, b.background)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := NewServer(":0", &fakeBackend{}, lms.NewNopLogger())

	rec, body := do(t, s, http.MethodGet, "/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}
	if body["error"] == nil {
		t.Errorf("body = %v, want an error field", body)
	}
}
