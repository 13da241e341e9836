package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/vastwatch/internal/ipc"
	"github.com/loykin/vastwatch/internal/metrics"
)

// Router provides the read-only HTTP surface of a monitor unit.
// Endpoints:
//
//	GET {basePath}/healthz   liveness of the HTTP server itself
//	GET {basePath}/status    latest status record from the mailbox
//	GET {basePath}/metrics   Prometheus metrics
//
// Control never flows through HTTP; commands go through the command
// mailbox only. basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	status   *ipc.StatusChannel
	basePath string
}

// NewRouter constructs a Router reading from the given status mailbox.
func NewRouter(status *ipc.StatusChannel, basePath string) *Router {
	return &Router{status: status, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/status", r.handleStatus)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The caller shuts it down via http.Server's Shutdown or Close.
func NewServer(addr, basePath string, status *ipc.StatusChannel) (*http.Server, error) {
	gin.SetMode(gin.ReleaseMode)
	r := NewRouter(status, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	rec, err := r.status.Read()
	if err != nil {
		if errors.Is(err, ipc.ErrNoStatus) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: "no status record yet"})
			return
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}
