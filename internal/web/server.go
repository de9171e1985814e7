// Package web serves the meme editor over HTTP: a JSON API around one
// session, a websocket stream of state changes and notices, and the
// embedded single-page UI.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"

	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/notify"
	"github.com/fpang/slop-meme-generator/internal/session"
)

//go:embed static
var staticFS embed.FS

var apiRoutes = map[string]struct{}{
	"/api/health":      {},
	"/api/state":       {},
	"/api/templates":   {},
	"/api/generate":    {},
	"/api/template":    {},
	"/api/autocaption": {},
	"/api/caption":     {},
	"/api/size":        {},
	"/api/preview":     {},
	"/api/download":    {},
	"/api/export":      {},
	"/api/notices":     {},
	"/api/ws":          {},
}

// Options configure a Server.
type Options struct {
	// RateInterval spaces generate requests; zero disables the limit.
	RateInterval time.Duration
	// Sink receives POST /api/export. Nil disables that route.
	Sink export.Sink
	// Metrics turns on per-request EMF metrics.
	Metrics bool
	// OriginSecret, when set, is required in the x-origin-verify header.
	OriginSecret string
}

// Server wires a session to HTTP.
type Server struct {
	sess    *session.Session
	notices *notify.Recorder
	hub     *Hub
	limiter *rate.Limiter
	opts    Options
	unwatch func()
}

// New builds a Server. The session should have been created with
// Notifier(notices, hub) so notices reach both the poll and push APIs.
func New(sess *session.Session, notices *notify.Recorder, hub *Hub, opts Options) *Server {
	s := &Server{
		sess:    sess,
		notices: notices,
		hub:     hub,
		opts:    opts,
	}
	if opts.RateInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(opts.RateInterval), 2)
	}
	s.unwatch = sess.Watch(func(st session.State) {
		hub.Broadcast(Message{Type: "state", State: &st})
	})
	return s
}

// Close stops broadcasting session changes.
func (s *Server) Close() {
	s.unwatch()
}

// Handler returns the full HTTP handler. The websocket route bypasses
// compression and metrics since both wrap the response writer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/templates", s.handleTemplates)
	mux.HandleFunc("/api/generate", s.handleGenerate)
	mux.HandleFunc("/api/template", s.handleTemplate)
	mux.HandleFunc("/api/autocaption", s.handleAutoCaption)
	mux.HandleFunc("/api/caption", s.handleCaption)
	mux.HandleFunc("/api/size", s.handleSize)
	mux.HandleFunc("/api/preview", s.handlePreview)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/notices", s.handleNotices)
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not found")
	})
	mux.Handle("/", staticHandler())

	var api http.Handler = gzhttp.GzipHandler(mux)
	if s.opts.Metrics {
		api = withMetrics(api)
	}

	root := http.NewServeMux()
	root.HandleFunc("/api/ws", s.handleWS)
	root.Handle("/", api)

	return withLogging(withOriginVerify(s.opts.OriginSecret, withCORS(root)))
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob: data:; style-src 'self' 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Unknown paths fall back to index.html.
		if path := r.URL.Path; path != "/" {
			f, err := sub.Open(strings.TrimPrefix(path, "/"))
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}
