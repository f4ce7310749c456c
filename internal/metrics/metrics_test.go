package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	ObserveQuery("read", "ok", 20*time.Millisecond, true)
	ObserveBind("object_file", "ok")
	ObserveReset("session", 3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		`sessionlake_query_total{class="read",outcome="ok"}`,
		"sessionlake_query_truncated_total",
		`sessionlake_bind_total{kind="object_file",outcome="ok"}`,
		`sessionlake_reset_files_total{scope="session"}`,
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
