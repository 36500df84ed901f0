// Package capdb persists capture analysis results in a SQLite database.
package capdb

import (
	"compress/gzip"
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// schema.sql contains the base schema for the analysis database: one row
// per analysis run plus the per-flow statistics each run produced.
//
//go:embed schema.sql
var schemaSQL string

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(schemaSQL)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// AnalysisRun summarizes one pass over a capture container.
type AnalysisRun struct {
	RunID              string `json:"run_id"`
	CapturePath        string `json:"capture_path"`
	Magic              uint32 `json:"magic"`
	LinkType           uint32 `json:"link_type"`
	RecordCount        int64  `json:"record_count"`
	RDMXCount          int64  `json:"rdmx_count"`
	TotalBytes         int64  `json:"total_bytes"`
	FlowCount          int64  `json:"flow_count"`
	FirstSeenUnixNanos int64  `json:"first_seen_unix_nanos"`
	LastSeenUnixNanos  int64  `json:"last_seen_unix_nanos"`
	Created            string `json:"created,omitempty"`
}

// FlowStat is one flow's aggregate counters within a run.
type FlowStat struct {
	RunID              string  `json:"run_id,omitempty"`
	SrcIP              string  `json:"src_ip"`
	DstIP              string  `json:"dst_ip"`
	SrcPort            int     `json:"src_port"`
	DstPort            int     `json:"dst_port"`
	Packets            int64   `json:"packets"`
	Bytes              int64   `json:"bytes"`
	RDMXPackets        int64   `json:"rdmx_packets"`
	MeanSize           float64 `json:"mean_size"`
	P95Size            float64 `json:"p95_size"`
	FirstSeenUnixNanos int64   `json:"first_seen_unix_nanos"`
	LastSeenUnixNanos  int64   `json:"last_seen_unix_nanos"`
}

// InsertAnalysisRun stores one run summary, assigning a fresh UUID when the
// run has no id yet, and returns the id.
func (db *DB) InsertAnalysisRun(run *AnalysisRun) (string, error) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}

	_, err := db.Exec(
		`INSERT INTO analysis_runs (
			run_id, capture_path, magic, link_type, record_count, rdmx_count,
			total_bytes, flow_count, first_seen_unix_nanos, last_seen_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CapturePath, run.Magic, run.LinkType, run.RecordCount,
		run.RDMXCount, run.TotalBytes, run.FlowCount,
		run.FirstSeenUnixNanos, run.LastSeenUnixNanos,
	)
	if err != nil {
		return "", err
	}
	return run.RunID, nil
}

// AnalysisRuns returns the most recent runs, newest first. Pass limit <= 0
// for the default of 100.
func (db *DB) AnalysisRuns(limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT run_id, capture_path, magic, link_type, record_count, rdmx_count,
			total_bytes, flow_count, first_seen_unix_nanos, last_seen_unix_nanos, created
		FROM analysis_runs ORDER BY created DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var run AnalysisRun
		if err := rows.Scan(
			&run.RunID,
			&run.CapturePath,
			&run.Magic,
			&run.LinkType,
			&run.RecordCount,
			&run.RDMXCount,
			&run.TotalBytes,
			&run.FlowCount,
			&run.FirstSeenUnixNanos,
			&run.LastSeenUnixNanos,
			&run.Created,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// InsertFlowStats stores the per-flow rows for a run in one transaction.
func (db *DB) InsertFlowStats(runID string, stats []FlowStat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO flow_stats (
			run_id, src_ip, dst_ip, src_port, dst_port, packets, bytes,
			rdmx_packets, mean_size, p95_size, first_seen_unix_nanos, last_seen_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, fs := range stats {
		if _, err := stmt.Exec(
			runID, fs.SrcIP, fs.DstIP, fs.SrcPort, fs.DstPort, fs.Packets,
			fs.Bytes, fs.RDMXPackets, fs.MeanSize, fs.P95Size,
			fs.FirstSeenUnixNanos, fs.LastSeenUnixNanos,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert flow stats for %s: %w", runID, err)
		}
	}

	return tx.Commit()
}

// FlowStatsForRun returns the stored flow rows of one run, highest byte
// volume first.
func (db *DB) FlowStatsForRun(runID string) ([]FlowStat, error) {
	rows, err := db.Query(
		`SELECT run_id, src_ip, dst_ip, src_port, dst_port, packets, bytes,
			rdmx_packets, mean_size, p95_size, first_seen_unix_nanos, last_seen_unix_nanos
		FROM flow_stats WHERE run_id = ? ORDER BY bytes DESC, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []FlowStat
	for rows.Next() {
		var fs FlowStat
		if err := rows.Scan(
			&fs.RunID,
			&fs.SrcIP,
			&fs.DstIP,
			&fs.SrcPort,
			&fs.DstPort,
			&fs.Packets,
			&fs.Bytes,
			&fs.RDMXPackets,
			&fs.MeanSize,
			&fs.P95Size,
			&fs.FirstSeenUnixNanos,
			&fs.LastSeenUnixNanos,
		); err != nil {
			return nil, err
		}
		stats = append(stats, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://rdmxcap.db", db.DB, &tailsql.DBOptions{
		Label: "Capture DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
