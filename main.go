package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"saleswatch/internal/aggregate"
	"saleswatch/internal/api"
	"saleswatch/internal/auth"
	"saleswatch/internal/config"
	"saleswatch/internal/eventbus"
	"saleswatch/internal/metrics"
	"saleswatch/internal/persist"
	"saleswatch/internal/pool"
	"saleswatch/internal/server"
	"saleswatch/internal/store"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Initializing saleswatch server...")
	log.Printf("Listen: %s, HTTP: %s, data dir: %s", cfg.ListenAddr, cfg.HTTPAddr, cfg.DataDir)
	log.Printf("Retention: %d days on disk, %d in memory, %d workers (build %s)",
		cfg.MaxDays, cfg.MemoryDays, cfg.Workers, BuildCommit)

	disk := persist.NewStore(cfg.DataDir)
	users := auth.NewStore()
	bus := eventbus.New()
	mets := metrics.New()

	// Corrupt files abort startup; silently serving partial state is worse
	// than not starting.
	savedUsers, err := disk.LoadUsers()
	if err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}
	for _, u := range savedUsers {
		users.RegisterPrehashed(u)
	}
	if len(savedUsers) > 0 {
		log.Printf("Loaded %d users", len(savedUsers))
	}

	ts, err := store.New(cfg.MaxDays, cfg.MemoryDays, disk, bus)
	if err != nil {
		log.Fatalf("Failed to create time-series store: %v", err)
	}
	if err := ts.Load(); err != nil {
		log.Fatalf("Failed to load time-series state: %v", err)
	}
	log.Printf("Current day is %d with %d historical days available",
		ts.CurrentDayID(), ts.HistoricalDayCount())

	agg, err := aggregate.New(ts, cfg.MemoryDays)
	if err != nil {
		log.Fatalf("Failed to create aggregation service: %v", err)
	}

	saveAll := func() error {
		if err := disk.SaveUsers(users.All()); err != nil {
			return fmt.Errorf("save users: %w", err)
		}
		if err := ts.Save(); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		return nil
	}

	workers := pool.New(cfg.Workers)
	srv := server.New(users, ts, agg, workers, mets)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.ListenAddr, err)
	}
	go func() {
		if err := srv.Serve(ln); err != server.ErrServerClosed {
			log.Fatalf("Serve: %v", err)
		}
	}()
	log.Printf("Accepting sales connections on %s", ln.Addr())

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		apiSrv := api.NewServer(users, ts, agg, mets, cfg.JWTSecret, saveAll)

		// Feed the websocket clients from the store's event bus.
		sales := make(chan eventbus.Message, 256)
		rotations := make(chan eventbus.Message, 16)
		bus.Subscribe(eventbus.TypeSaleAdded, sales)
		bus.Subscribe(eventbus.TypeDayRotated, rotations)
		go func() {
			for msg := range sales {
				apiSrv.BroadcastSale(msg.DayID, msg.Sale)
			}
		}()
		go func() {
			for msg := range rotations {
				apiSrv.BroadcastDayRotated(msg.DayID, msg.CompletedDay, msg.EventCount)
			}
		}()

		httpSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: apiSrv.Router()}
		go func() {
			if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("HTTP server: %v", err)
			}
		}()
		log.Printf("Admin HTTP on %s", cfg.HTTPAddr)
	}

	quit := make(chan struct{})
	go adminConsole(ts, users, mets, saveAll, quit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
	case <-quit:
		log.Println("Shutting down")
	}

	srv.Close()
	if httpSrv != nil {
		httpSrv.Close()
	}
	workers.Stop()
	if err := saveAll(); err != nil {
		log.Printf("Final save failed: %v", err)
	} else {
		log.Println("State saved")
	}
	bus.Close()
}

// adminConsole reads commands from stdin until quit or EOF.
func adminConsole(ts *store.Store, users *auth.Store, mets *metrics.Metrics, saveAll func() error, quit chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "":
		case "newday":
			ts.NewDay()
			mets.DaysRotated.Inc()
			fmt.Printf("Day rotated, current day is %d\n", ts.CurrentDayID())
		case "stats":
			snap := ts.Snapshot()
			fmt.Printf("users: %d\n", users.Count())
			fmt.Printf("current day: %d (%d events)\n", snap.CurrentDayID, snap.EventsToday)
			fmt.Printf("historical days: %d of max %d (%d in memory)\n",
				snap.HistoricalDays, snap.MaxDays, snap.MemoryDays)
		case "save":
			if err := saveAll(); err != nil {
				fmt.Printf("save failed: %v\n", err)
			} else {
				fmt.Println("saved")
			}
		case "help":
			fmt.Println("commands: newday | stats | save | help | quit")
		case "quit":
			close(quit)
			return
		default:
			fmt.Println("unknown command, try: help")
		}
	}
}
