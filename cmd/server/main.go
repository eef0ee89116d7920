package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sptf/backend/internal/authcache"
	"github.com/sptf/backend/internal/config"
	"github.com/sptf/backend/internal/registry"
	"github.com/sptf/backend/internal/userstore"
	"github.com/sptf/backend/internal/watcher"
	"github.com/sptf/backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	root := flag.String("root", "", "Override served root directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *root != "" {
		cfg.Files.Root = *root
	}

	if _, err := os.Stat(cfg.Files.Root); err != nil {
		log.Fatalf("Served root %s is not usable: %v", cfg.Files.Root, err)
	}

	users, err := userstore.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open user database: %v", err)
	}

	cache, err := authcache.Open(cfg.Auth.CacheDir, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to open token cache: %v", err)
	}
	defer cache.Close()

	reg := registry.New()

	fw, err := watcher.New(cfg.Files.Root, cfg.Watcher.Debounce, reg)
	if err != nil {
		log.Fatalf("Failed to create file watcher: %v", err)
	}
	if err := fw.Start(); err != nil {
		log.Fatalf("Failed to start file watcher: %v", err)
	}
	reg.AttachWatcherHandle(fw)

	server := ws.NewServer(cfg, reg, cache, users)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		reg.Stop()
		cache.Close()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
