package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"leftover-chef/internal/mealdb"
	"leftover-chef/internal/shopping"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE lookup_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		endpoint TEXT NOT NULL,
		outcome TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		timestamp DATETIME NOT NULL
	);`)
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(db)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("%w: 42", mealdb.ErrNotFound), OutcomeNotFound},
		{fmt.Errorf("%w after 10s", mealdb.ErrTimeout), OutcomeTimeout},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestRecorder(t *testing.T) {
	store := newTestStore(t)
	r := NewRecorder(store)

	r.ObserveRequest("lookup", 120*time.Millisecond, nil)
	r.ObserveRequest("lookup", 10*time.Second, mealdb.ErrTimeout)
	r.ObserveGeneration(shopping.GenerationApplied, 7)
	r.ObservePlanChange("meal_added")

	usage, err := store.GetDailyUsage(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 || usage[0].Requests != 2 || usage[0].Failures != 1 {
		t.Errorf("Unexpected daily usage %+v", usage)
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`leftoverchef_mealdb_requests_total{endpoint="lookup",outcome="ok"} 1`,
		`leftoverchef_mealdb_requests_total{endpoint="lookup",outcome="timeout"} 1`,
		`leftoverchef_shopping_list_items 7`,
		`leftoverchef_meal_plan_changes_total{kind="meal_added"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected exposition to contain %q", want)
		}
	}
}

func TestStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_ = store.Record(ctx, LookupMetric{Endpoint: "lookup", Outcome: OutcomeOK, LatencyMS: 5, Timestamp: time.Now().AddDate(0, 0, -40)})
	_ = store.Record(ctx, LookupMetric{Endpoint: "lookup", Outcome: OutcomeOK, LatencyMS: 5})

	n, err := store.Cleanup(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Expected 1 row removed, got %d", n)
	}
}

func TestSysHealth(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.db"), make([]byte, 2048), 0644); err != nil {
		t.Fatal(err)
	}
	h := GetSysHealth(dir, time.Now().Add(-time.Minute))
	if h.DataSize != "2.0 KB" {
		t.Errorf("Expected 2.0 KB, got %s", h.DataSize)
	}
	if h.Goroutines == 0 || h.Uptime < time.Minute {
		t.Errorf("Unexpected health %+v", h)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{0: "0 B", 1023: "1023 B", 1536: "1.5 KB", 5 * 1024 * 1024: "5.0 MB"}
	for n, want := range cases {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %s, want %s", n, got, want)
		}
	}
}
