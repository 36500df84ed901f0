package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/rdmxcap/internal/capdb"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring capture traffic.
// It provides endpoints for health checks, real-time status, flow
// summaries, chart pages, and (when a capture database is configured)
// analysis-run lookups and admin routes.
type WebServer struct {
	address           string
	stats             *rdmx.PacketStats
	ring              *SampleRing
	server            *http.Server
	forwardingEnabled bool
	forwardAddr       string
	forwardPort       int
	decodeEnabled     bool
	udpPort           int
	db                *capdb.DB
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address           string
	Stats             *rdmx.PacketStats
	Ring              *SampleRing
	ForwardingEnabled bool
	ForwardAddr       string
	ForwardPort       int
	DecodeEnabled     bool
	UDPPort           int
	DB                *capdb.DB
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:           config.Address,
		stats:             config.Stats,
		ring:              config.Ring,
		forwardingEnabled: config.ForwardingEnabled,
		forwardAddr:       config.ForwardAddr,
		forwardPort:       config.ForwardPort,
		decodeEnabled:     config.DecodeEnabled,
		udpPort:           config.UDPPort,
		db:                config.DB,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/flows", ws.handleFlows)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/charts/sizes", ws.handleSizeChart)
	mux.HandleFunc("/charts/flows", ws.handleFlowsChart)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "rdmxwatch", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	forwardingStatus := "disabled"
	if ws.forwardingEnabled {
		forwardingStatus = fmt.Sprintf("enabled (%s:%d)", ws.forwardAddr, ws.forwardPort)
	}

	decodeStatus := "enabled"
	if !ws.decodeEnabled {
		decodeStatus = "disabled"
	}

	dbStatus := "not configured"
	if ws.db != nil {
		dbStatus = "configured"
	}

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		UDPPort          int
		HTTPAddress      string
		ForwardingStatus string
		DecodeStatus     string
		DBStatus         string
		Uptime           string
		Stats            *rdmx.StatsSnapshot
	}{
		UDPPort:          ws.udpPort,
		HTTPAddress:      ws.address,
		ForwardingStatus: forwardingStatus,
		DecodeStatus:     decodeStatus,
		DBStatus:         dbStatus,
		Uptime:           ws.uptime(),
		Stats:            ws.snapshot(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

func (ws *WebServer) uptime() string {
	if ws.stats == nil {
		return "unknown"
	}
	return ws.stats.GetUptime().Round(time.Second).String()
}

func (ws *WebServer) snapshot() *rdmx.StatsSnapshot {
	if ws.stats == nil {
		return nil
	}
	return ws.stats.GetLatestSnapshot()
}

// handleStats returns the latest stats snapshot as JSON.
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := struct {
		UptimeSecs float64             `json:"uptime_secs"`
		UDPPort    int                 `json:"udp_port"`
		Decode     bool                `json:"decode_enabled"`
		Snapshot   *rdmx.StatsSnapshot `json:"snapshot"`
	}{
		UDPPort:  ws.udpPort,
		Decode:   ws.decodeEnabled,
		Snapshot: ws.snapshot(),
	}
	if ws.stats != nil {
		resp.UptimeSecs = ws.stats.GetUptime().Seconds()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleFlows returns the top flows over the recent sample window.
// Query params:
//
//	top (optional, default 20)
func (ws *WebServer) handleFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.ring == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no sample ring configured")
		return
	}

	top := 20
	if v := r.URL.Query().Get("top"); v != "" {
		fmt.Sscanf(v, "%d", &top)
		if top <= 0 || top > 1000 {
			top = 20
		}
	}

	flows := ws.ring.TopFlows(top)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		SampleCount int           `json:"sample_count"`
		Flows       []FlowSummary `json:"flows"`
	}{
		SampleCount: ws.ring.Len(),
		Flows:       flows,
	})
}

// handleRuns lists recent analysis runs from the capture database.
// Query params:
//
//	limit (optional, default 20)
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no capture database configured")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
		if limit <= 0 || limit > 500 {
			limit = 20
		}
	}

	runs, err := ws.db.AnalysisRuns(limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
