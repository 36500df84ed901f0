package capdb

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestNewDBCreatesSchema tests that opening a fresh database creates the
// base tables.
func TestNewDBCreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"analysis_runs", "flow_stats"} {
		var count int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check for table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

// TestInsertAnalysisRun tests storing and reading back run summaries.
func TestInsertAnalysisRun(t *testing.T) {
	db := setupTestDB(t)

	run := &AnalysisRun{
		CapturePath: "/data/session1.pcap",
		Magic:       0xA1B23C4D,
		LinkType:    1,
		RecordCount: 1500,
		RDMXCount:   1200,
		TotalBytes:  1572864,
		FlowCount:   3,
	}

	id, err := db.InsertAnalysisRun(run)
	require.NoError(t, err)
	require.NotEmpty(t, id, "expected a generated run id")
	assert.Equal(t, id, run.RunID, "run should carry its assigned id")

	runs, err := db.AnalysisRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, id, got.RunID)
	assert.Equal(t, run.CapturePath, got.CapturePath)
	assert.Equal(t, uint32(0xA1B23C4D), got.Magic)
	assert.Equal(t, int64(1500), got.RecordCount)
	assert.Equal(t, int64(1200), got.RDMXCount)
	assert.Equal(t, int64(1572864), got.TotalBytes)
	assert.NotEmpty(t, got.Created, "created timestamp should be set")
}

// TestInsertAnalysisRunKeepsExplicitID tests that a caller-provided run id
// is preserved.
func TestInsertAnalysisRunKeepsExplicitID(t *testing.T) {
	db := setupTestDB(t)

	run := &AnalysisRun{RunID: "run-fixed-id", CapturePath: "a.pcap", Magic: 1}
	id, err := db.InsertAnalysisRun(run)
	if err != nil {
		t.Fatalf("InsertAnalysisRun failed: %v", err)
	}
	if id != "run-fixed-id" {
		t.Errorf("Expected id run-fixed-id, got %s", id)
	}
}

// TestAnalysisRunsLimit tests the default and explicit limits.
func TestAnalysisRunsLimit(t *testing.T) {
	db := setupTestDB(t)

	for i := 0; i < 5; i++ {
		_, err := db.InsertAnalysisRun(&AnalysisRun{CapturePath: "x.pcap", Magic: 1})
		if err != nil {
			t.Fatalf("InsertAnalysisRun failed: %v", err)
		}
	}

	runs, err := db.AnalysisRuns(3)
	if err != nil {
		t.Fatalf("AnalysisRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("Expected 3 runs with limit 3, got %d", len(runs))
	}

	runs, err = db.AnalysisRuns(0)
	if err != nil {
		t.Fatalf("AnalysisRuns failed: %v", err)
	}
	if len(runs) != 5 {
		t.Errorf("Expected all 5 runs with default limit, got %d", len(runs))
	}
}

// TestFlowStatsRoundtrip tests inserting and reading per-flow rows.
func TestFlowStatsRoundtrip(t *testing.T) {
	db := setupTestDB(t)

	runID, err := db.InsertAnalysisRun(&AnalysisRun{CapturePath: "s.pcap", Magic: 1})
	require.NoError(t, err)

	stats := []FlowStat{
		{
			SrcIP: "192.168.1.1", DstIP: "192.168.1.2",
			SrcPort: 2368, DstPort: 4791,
			Packets: 1000, Bytes: 1048576, RDMXPackets: 990,
			MeanSize: 1048.5, P95Size: 1400,
			FirstSeenUnixNanos: 1700000000000000000,
			LastSeenUnixNanos:  1700000060000000000,
		},
		{
			SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
			SrcPort: 5000, DstPort: 6000,
			Packets: 10, Bytes: 2048, RDMXPackets: 0,
			MeanSize: 204.8, P95Size: 300,
		},
	}

	require.NoError(t, db.InsertFlowStats(runID, stats))

	got, err := db.FlowStatsForRun(runID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by bytes descending
	assert.Equal(t, int64(1048576), got[0].Bytes, "highest-volume flow first")
	assert.Equal(t, "192.168.1.1", got[0].SrcIP)
	assert.Equal(t, 4791, got[0].DstPort)
	assert.Equal(t, int64(990), got[0].RDMXPackets)
	assert.Equal(t, runID, got[0].RunID)
	assert.Equal(t, int64(10), got[1].Packets)
}

// TestInsertFlowStatsEmpty tests that an empty batch is a no-op.
func TestInsertFlowStatsEmpty(t *testing.T) {
	db := setupTestDB(t)

	if err := db.InsertFlowStats("no-such-run", nil); err != nil {
		t.Fatalf("InsertFlowStats with empty batch failed: %v", err)
	}
}

// TestFlowStatsForUnknownRun tests querying a run with no rows.
func TestFlowStatsForUnknownRun(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.FlowStatsForRun("missing")
	if err != nil {
		t.Fatalf("FlowStatsForRun failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no rows for unknown run, got %d", len(got))
	}
}

// TestAttachAdminRoutes tests that the debug handlers are mounted.
func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	req := httptest.NewRequest("GET", "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /debug/, got %d", rec.Code)
	}
}
