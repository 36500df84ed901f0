// Command rdmxwatch receives RDMX traffic on a UDP port, decodes the
// Ethernet/IPv4/UDP/RDMX header stack of each packet, and serves live
// statistics over HTTP. It can also forward raw packets to another
// address and replay capture files onto the decode pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rdmxcap/internal/capdb"
	"github.com/banshee-data/rdmxcap/internal/config"
	"github.com/banshee-data/rdmxcap/internal/monitor"
	"github.com/banshee-data/rdmxcap/internal/network"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
	"github.com/banshee-data/rdmxcap/internal/version"
)

var (
	configFile     = flag.String("config", "", "Path to a JSON config file (flags override file values)")
	listen         = flag.String("listen", "", "HTTP listen address")
	udpPort        = flag.Int("udp-port", 0, "UDP port to listen for RDMX packets")
	udpAddress     = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	forwardPackets = flag.Bool("forward", false, "Forward received UDP packets to another port")
	forwardPort    = flag.Int("forward-port", 0, "Port to forward UDP packets to")
	forwardAddr    = flag.String("forward-addr", "", "Address to forward UDP packets to")
	disableDecode  = flag.Bool("no-decode", false, "Disable header stack decoding (raw counting only)")
	dbFile         = flag.String("db", "", "Path to the SQLite capture database (optional)")
	rcvBuf         = flag.Int("rcvbuf", 0, "UDP receive buffer size in bytes")
	logInterval    = flag.Int("log-interval", 0, "Statistics logging interval in seconds")
	sampleRingSize = flag.Int("samples", 4096, "Number of recent packets to keep for the flows API")
	replayFile     = flag.String("replay", "", "Replay a pcap capture file instead of listening (requires -tags=pcap build)")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

// loadConfig merges the optional config file with command line flags. A flag
// explicitly set on the command line wins over the file value.
func loadConfig() (*config.WatchConfig, error) {
	cfg := config.EmptyWatchConfig()
	if *configFile != "" {
		loaded, err := config.LoadWatchConfig(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["listen"] {
		cfg.HTTPListen = listen
	}
	if set["udp-port"] {
		cfg.UDPPort = udpPort
	}
	if set["udp-addr"] {
		cfg.UDPAddress = udpAddress
	}
	if set["forward"] {
		cfg.Forward = forwardPackets
	}
	if set["forward-port"] {
		cfg.ForwardPort = forwardPort
	}
	if set["forward-addr"] {
		cfg.ForwardAddr = forwardAddr
	}
	if set["no-decode"] {
		cfg.DisableDecode = disableDecode
	}
	if set["db"] {
		cfg.DBPath = dbFile
	}
	if set["rcvbuf"] {
		cfg.RcvBuf = rcvBuf
	}
	if set["log-interval"] {
		s := fmt.Sprintf("%ds", *logInterval)
		cfg.LogInterval = &s
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("rdmxwatch %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Construct UDP listen address
	var udpListenAddr string
	if cfg.GetUDPAddress() == "" {
		udpListenAddr = fmt.Sprintf(":%d", cfg.GetUDPPort())
	} else {
		udpListenAddr = fmt.Sprintf("%s:%d", cfg.GetUDPAddress(), cfg.GetUDPPort())
	}

	stats := rdmx.NewPacketStats()
	ring := monitor.NewSampleRing(*sampleRingSize)

	var db *capdb.DB
	if cfg.GetDBPath() != "" {
		db, err = capdb.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("Failed to open capture database: %v", err)
		}
		defer db.Close()
		if err := db.MigrateLatest(); err != nil {
			log.Fatalf("Failed to apply database migrations: %v", err)
		}
		log.Printf("Capture database: %s", cfg.GetDBPath())
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var forwarder *network.PacketForwarder
	if cfg.GetForward() {
		forwarder, err = network.NewPacketForwarder(cfg.GetForwardAddr(), cfg.GetForwardPort(), stats, cfg.GetLogInterval())
		if err != nil {
			log.Fatalf("Failed to create packet forwarder: %v", err)
		}
		defer forwarder.Close()
		log.Printf("Forwarding packets to %s:%d", cfg.GetForwardAddr(), cfg.GetForwardPort())
	}

	if cfg.GetDisableDecode() {
		log.Println("Header decoding disabled (raw packet counting only)")
	}

	// Packet source: replay a capture file or listen live. Both start the
	// forwarder themselves; the replay path needs its stats ticker wired up
	// here since there is no listener loop to do it.
	if *replayFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.GetLogInterval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					stats.LogStats(!cfg.GetDisableDecode())
				}
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := network.ReplayCaptureFile(ctx, *replayFile, cfg.GetUDPPort(), ring, stats, forwarder); err != nil {
				log.Printf("Replay error: %v", err)
				return
			}
			log.Printf("Replay of %s complete", *replayFile)
		}()
	} else {
		listener := network.NewUDPListener(network.UDPListenerConfig{
			Address:       udpListenAddr,
			RcvBuf:        cfg.GetRcvBuf(),
			LogInterval:   cfg.GetLogInterval(),
			Stats:         stats,
			Forwarder:     forwarder,
			Sink:          ring,
			DisableDecode: cfg.GetDisableDecode(),
			UDPPort:       cfg.GetUDPPort(),
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP listener error: %v", err)
			}
			log.Print("UDP listener routine terminated")
		}()
	}

	// HTTP server goroutine
	webServer := monitor.NewWebServer(monitor.WebServerConfig{
		Address:           cfg.GetHTTPListen(),
		Stats:             stats,
		Ring:              ring,
		ForwardingEnabled: cfg.GetForward(),
		ForwardAddr:       cfg.GetForwardAddr(),
		ForwardPort:       cfg.GetForwardPort(),
		DecodeEnabled:     !cfg.GetDisableDecode(),
		UDPPort:           cfg.GetUDPPort(),
		DB:                db,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webServer.Start(ctx); err != nil {
			log.Printf("Web server error: %v", err)
		}
	}()

	log.Printf("rdmxwatch %s listening on UDP %s, HTTP %s", version.Version, udpListenAddr, cfg.GetHTTPListen())

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
