package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lineout-go/internal/config"
	"lineout-go/internal/plot"
	"lineout-go/internal/processing"
)

//go:embed web/*
var webFS embed.FS

// Hooks connect the server to the viewer state. Any of them may be nil.
type Hooks struct {
	Status   func() map[string]any
	Latest   func() *processing.View
	Settings *config.SettingsStore
	Export   func() (string, error)
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.ViewerConfig
	hooks    Hooks
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

func New(cfg config.ViewerConfig, hooks Hooks) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
		cfg:     cfg,
		hooks:   hooks,
	}
}

func Run(ctx context.Context, cfg config.ViewerConfig, messages <-chan any, hooks Hooks) error {
	srv := New(cfg, hooks)
	handler, err := srv.Handler()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go srv.broadcast(ctx, messages)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Handler() (http.Handler, error) {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/settings", s.handleSettings)
	mux.HandleFunc("/lineout.png", s.handleLineoutPNG)
	mux.HandleFunc("/image.png", s.handleImagePNG)
	mux.HandleFunc("/export", s.handleExport)
	return mux, nil
}

func (s *Server) configPayload() map[string]any {
	cols := s.cfg.Cols
	if s.hooks.Settings != nil {
		cols = s.hooks.Settings.Cols()
	}
	payload := map[string]any{
		"type":     "config",
		"rows":     s.cfg.Rows,
		"cols":     s.cfg.Cols,
		"endpoint": s.cfg.Endpoint,
		"encoding": s.cfg.Encoding,
		"port":     s.cfg.Port,
		"limits":   limits(cols),
	}
	if s.hooks.Settings != nil {
		payload["settings"] = s.hooks.Settings.Get()
	}
	return payload
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()

	_ = s.writeJSON(conn, writeMu, s.configPayload())

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if reply := s.handleRequest(payload); reply != nil {
				_ = s.writeJSON(conn, writeMu, reply)
			}
		}
	}()
}

type request struct {
	Type string `json:"type"`
	config.SettingsUpdate
}

// handleRequest answers one client websocket message. A nil reply sends
// nothing.
func (s *Server) handleRequest(payload []byte) any {
	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil
	}
	switch req.Type {
	case "snapshot_request":
		if s.hooks.Latest == nil {
			return nil
		}
		view := s.hooks.Latest()
		if view == nil {
			return nil
		}
		return view.UIFrame()
	case "settings":
		if s.hooks.Settings == nil {
			return nil
		}
		// Every client, this one included, hears about the change through
		// the broadcast channel.
		s.hooks.Settings.Apply(req.SettingsUpdate)
		return nil
	case "export_request":
		if s.hooks.Export == nil {
			return nil
		}
		path, err := s.hooks.Export()
		if err != nil {
			return map[string]any{"type": "export", "ok": false, "error": err.Error()}
		}
		return map[string]any{"type": "export", "ok": true, "path": path}
	default:
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.hooks.Status != nil {
		payload = s.hooks.Status()
	}
	if metrics, ok := payload["metrics"].(map[string]any); ok {
		metrics["ws_clients"] = s.clientCount()
	} else {
		payload["ws_clients"] = s.clientCount()
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.hooks.Settings == nil {
		http.Error(w, "settings unavailable", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost, http.MethodPut:
		var update config.SettingsUpdate
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&update); err != nil {
			http.Error(w, "invalid settings: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.hooks.Settings.Apply(update)
	default:
		w.Header().Set("Allow", "GET, POST, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.hooks.Settings.Get())
}

func (s *Server) latest() *processing.View {
	if s.hooks.Latest == nil {
		return nil
	}
	return s.hooks.Latest()
}

func (s *Server) handleLineoutPNG(w http.ResponseWriter, _ *http.Request) {
	view := s.latest()
	if view == nil {
		http.Error(w, "no frame rendered yet", http.StatusNotFound)
		return
	}
	img, err := plot.LineoutPNG(view, plot.DefaultWidth, plot.DefaultHeight)
	if err != nil {
		log.Printf("lineout chart failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

func (s *Server) handleImagePNG(w http.ResponseWriter, _ *http.Request) {
	view := s.latest()
	if view == nil || len(view.Heatmap) == 0 {
		http.Error(w, "no image rendered yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(view.Heatmap)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.hooks.Export == nil {
		http.Error(w, "export unavailable", http.StatusServiceUnavailable)
		return
	}
	path, err := s.hooks.Export()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"path": path})
}

func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				continue
			}
			s.sendAll(payload)
		}
	}
}

type client struct {
	conn    *websocket.Conn
	writeMu *sync.Mutex
}

// sendAll writes payload to every connected client, each on its own
// goroutine and outside s.mu. Clients whose write fails are removed.
func (s *Server) sendAll(payload []byte) {
	s.mu.Lock()
	clients := make([]client, 0, len(s.clients))
	for conn, writeMu := range s.clients {
		clients = append(clients, client{conn: conn, writeMu: writeMu})
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c client) {
			defer wg.Done()
			if err := s.writeMessage(c.conn, c.writeMu, websocket.TextMessage, payload); err != nil {
				s.removeClient(c.conn)
			}
		}(c)
	}
	wg.Wait()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

func limits(cols int) map[string]any {
	return map[string]any{
		"angle_min": config.MinAngle,
		"angle_max": config.MaxAngle,
		"peak_max":  cols,
		"width_max": cols,
	}
}

// SettingsMessage is the broadcast announcing changed settings. cols is the
// width the settings are clamped against.
func SettingsMessage(settings config.Settings, cols int) map[string]any {
	return map[string]any{
		"type":      "settings",
		"angle":     settings.Angle,
		"fit":       settings.Fit,
		"peak_pos":  settings.PeakPos,
		"fit_width": settings.FitWidth,
		"limits":    limits(cols),
	}
}
