package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/sptf/backend/internal/authcache"
	"github.com/sptf/backend/internal/config"
	"github.com/sptf/backend/internal/files"
	"github.com/sptf/backend/internal/registry"
	"github.com/sptf/backend/internal/sptferr"
	"github.com/sptf/backend/internal/userstore"
	"github.com/sptf/backend/internal/wire"
)

// CookieName carries the auth token on HTTP endpoints. The live connection
// presents the token as the auth_token query parameter instead.
const CookieName = "sptf-cookie"

type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	cache    *authcache.Cache
	users    *userstore.Store
}

func NewServer(cfg *config.Config, reg *registry.Registry, cache *authcache.Cache, users *userstore.Store) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		cache:    cache,
		users:    users,
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/signup", s.handleSignup)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/status", s.handleStatus)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UUID string `json:"uuid"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ws: decode login request: %v", err)
		sptferr.WriteHTTP(w, sptferr.New(sptferr.WrongFormat, "decode login request"))
		return
	}

	userID, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}

	token, err := s.cache.Issue(userID)
	if err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token.String(),
		Path:     "/",
		MaxAge:   int(s.cfg.Auth.TokenTTL.Seconds()),
		HttpOnly: true,
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{UUID: token.String()})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ws: decode signup request: %v", err)
		sptferr.WriteHTTP(w, sptferr.New(sptferr.WrongFormat, "decode signup request"))
		return
	}

	if err := s.users.Signup(req.Username, req.Password); err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		sptferr.WriteHTTP(w, sptferr.New(sptferr.WrongCookie, "missing auth cookie"))
		return
	}
	if err := s.cache.Revoke(cookie.Value); err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusOK)
}

// authorize validates (and refreshes) the auth cookie.
func (s *Server) authorize(r *http.Request) error {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return sptferr.New(sptferr.WrongCookie, "missing auth cookie")
	}
	if _, err := s.cache.Validate(cookie.Value); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.authorize(r); err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}

	paths := r.URL.Query()["paths"]
	switch len(paths) {
	case 0:
		sptferr.WriteHTTP(w, sptferr.New(sptferr.Unexpected, "no paths given"))
	case 1:
		s.serveSingleFile(w, r, paths[0])
	default:
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", `attachment; filename="target.tar.gz"`)
		if err := files.Bundle(s.cfg.Files.Root, paths, w); err != nil {
			// Headers may already be out; the truncated stream is the
			// only failure signal left.
			log.Printf("ws: bundle download: %v", err)
		}
	}
}

func (s *Server) serveSingleFile(w http.ResponseWriter, r *http.Request, userPath string) {
	realPath := files.RealPath(s.cfg.Files.Root, userPath)
	f, err := os.Open(realPath)
	if err != nil {
		log.Printf("ws: open %s: %v", realPath, err)
		sptferr.WriteHTTP(w, sptferr.Newf(sptferr.PermissionDenied, "open %s", realPath))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		log.Printf("ws: stat %s: dir=%v err=%v", realPath, info != nil && info.IsDir(), err)
		sptferr.WriteHTTP(w, sptferr.Newf(sptferr.PermissionDenied, "stat %s", realPath))
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(realPath)))
	http.ServeContent(w, r, filepath.Base(realPath), info.ModTime(), f)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.authorize(r); err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}

	msg, err := wire.DecodeFrom(http.MaxBytesReader(w, r.Body, s.cfg.Files.MaxUploadBytes))
	if err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}
	req, ok := msg.(*wire.FileUploadRequest)
	if !ok {
		sptferr.WriteHTTP(w, sptferr.Newf(sptferr.WrongFormat, "unexpected content kind %T", msg))
		return
	}

	if err := files.SaveUploads(s.cfg.Files.Root, req); err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type statusResponse struct {
	UptimeSeconds uint64  `json:"uptimeSeconds"`
	DiskTotal     uint64  `json:"diskTotal"`
	DiskUsed      uint64  `json:"diskUsed"`
	DiskFree      uint64  `json:"diskFree"`
	DiskUsedPct   float64 `json:"diskUsedPercent"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r); err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}

	var resp statusResponse
	if uptime, err := host.Uptime(); err == nil {
		resp.UptimeSeconds = uptime
	} else {
		log.Printf("ws: host uptime: %v", err)
	}
	if usage, err := disk.Usage(s.cfg.Files.Root); err == nil {
		resp.DiskTotal = usage.Total
		resp.DiskUsed = usage.Used
		resp.DiskFree = usage.Free
		resp.DiskUsedPct = usage.UsedPercent
	} else {
		log.Printf("ws: disk usage for %s: %v", s.cfg.Files.Root, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("auth_token")
	if _, err := s.cache.Validate(token); err != nil {
		sptferr.WriteHTTP(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	c := newConn(conn, s.registry, s.cfg.Files.Root)
	go func() {
		c.run()
		log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
	}()
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	hostname := parsed.Host
	if hostname == "" {
		return false
	}
	if hostname == r.Host {
		return true
	}
	if strings.HasPrefix(hostname, "localhost:") || hostname == "localhost" {
		return true
	}
	if strings.HasPrefix(hostname, "127.0.0.1:") || hostname == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(hostname, "[::1]:") || hostname == "::1" {
		return true
	}

	return false
}

// ListenAndServe starts the HTTP listener, with TLS when a certificate pair
// is configured.
func ListenAndServe(cfg *config.Config, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if cfg.TLSEnabled() {
		log.Printf("Server listening on %s (TLS)", addr)
		return http.ListenAndServeTLS(addr, cfg.Server.CertFile, cfg.Server.KeyFile, mux)
	}
	log.Printf("Server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
