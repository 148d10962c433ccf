package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"trivia-live/internal/app"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Game           *app.GameService
	Editor         *app.QuizEditor
	Auth           *Authenticator
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter builds the full handler: health check, websocket endpoints and
// the quiz REST API, behind CORS and access logging.
func NewRouter(cfg RouterConfig) http.Handler {
	wsHandler := NewWSHandler(cfg.Game, cfg.Auth, cfg.AllowedOrigins, cfg.Logger)
	quizHandler := NewQuizHandler(cfg.Editor, cfg.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ws/host", wsHandler.ServeHost)
	mux.HandleFunc("GET /ws/play", wsHandler.ServePlay)
	quizHandler.Register(mux, cfg.Auth.Middleware)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return accessLog(cfg.Logger, c.Handler(mux))
}

func accessLog(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
