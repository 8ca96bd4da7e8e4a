package stopinput

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"go-scribe/debug"
)

// Status is what GET /status reports
type Status struct {
	Recording bool   `json:"recording"`
	State     string `json:"state"`
	Beat      int    `json:"beat,omitempty"`
	Sixteenth int    `json:"sixteenth,omitempty"`
	Events    int    `json:"events"`
}

// HTTP is a remote stop button: POST /stop ends the take, GET /status
// reports progress. CORS is open so a browser page on the LAN can drive it.
type HTTP struct {
	*Gesture
	addr   string
	status func() Status

	mu     sync.Mutex
	server *http.Server
	bound  string
	wg     sync.WaitGroup
}

// NewHTTP creates a remote stop listening on addr once enabled
func NewHTTP(addr string, after time.Duration) *HTTP {
	return &HTTP{
		Gesture: NewGesture("http "+addr, after),
		addr:    addr,
	}
}

// SetStatus sets the source for GET /status
func (h *HTTP) SetStatus(f func() Status) {
	h.status = f
}

// Handler returns the routed, CORS-wrapped handler
func (h *HTTP) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/stop", h.handleStop).Methods("POST")
	router.HandleFunc("/status", h.handleStatus).Methods("GET")

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(router)
}

func (h *HTTP) handleStop(w http.ResponseWriter, r *http.Request) {
	if !h.Enabled() {
		http.Error(w, "not recording", http.StatusConflict)
		return
	}
	h.Trigger()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]bool{"stopping": true})
}

func (h *HTTP) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Recording: h.Enabled(), State: "idle"}
	if h.status != nil {
		st = h.status()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// Addr returns the bound address while enabled
func (h *HTTP) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

func (h *HTTP) Enable(stop func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server != nil {
		return errors.Wrap(ErrEnabled, h.addr)
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", h.addr)
	}
	if err := h.Gesture.Enable(stop); err != nil {
		ln.Close()
		return err
	}

	h.server = &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}
	h.bound = ln.Addr().String()
	h.wg.Add(1)
	go func(srv *http.Server) {
		defer h.wg.Done()
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			debug.Warn("stop", "http remote: %v", err)
		}
	}(h.server)
	debug.Log("stop", "http remote on %s", h.bound)
	return nil
}

func (h *HTTP) Disable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Gesture.Disable()
	if h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := h.server.Shutdown(ctx)
	h.wg.Wait()
	h.server = nil
	h.bound = ""
	return err
}
