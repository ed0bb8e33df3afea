package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rkllmd/internal/manager"
	"rkllmd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	Stream(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) error
	Complete(ctx context.Context, req types.ChatRequest) (types.ChatCompletion, error)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints; event streams are not in the compressible set.
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	chat := chatHandler(svc)
	r.Post("/rkllm_chat", chat)
	r.Post("/v1/chat/completions", chat)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func corsOptions() cors.Options {
	methods := corsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := corsAllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Log-Level", "X-Request-Id"}
	}
	return cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		MaxAge:         300,
	}
}

// chatHandler serves POST /rkllm_chat.
//
//	@Summary	Chat with the engine
//	@Accept		json
//	@Produce	json,text/event-stream
//	@Param		request	body		types.ChatRequest	true	"chat request"
//	@Success	200		{object}	types.ChatCompletion
//	@Failure	400		{object}	types.ErrorResponse
//	@Failure	503		{object}	types.ErrorResponse
//	@Router		/rkllm_chat [post]
func chatHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// size overflows also land here; report them as a plain bad request
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := manager.ValidateRequest(req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		logChatStart(r, lvl, len(req.Messages), req.Stream)

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if inferTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(inferTimeout)*time.Second)
			defer tcancel()
		}

		if !req.Stream {
			out, err := svc.Complete(ctx, req)
			if err != nil {
				handleChatError(w, r, lvl, start, err, false)
				return
			}
			writeJSON(w, out)
			logChatEnd(r, lvl, http.StatusOK, start, nil)
			return
		}

		sw := &sseWriter{w: w}
		var out io.Writer = sw
		if lvl >= LevelDebug {
			out = io.MultiWriter(sw, &loggingFrameWriter{log: reqLogger(r)})
		}
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		if err := svc.Stream(ctx, req, out, flush); err != nil {
			handleChatError(w, r, lvl, start, err, sw.started)
			return
		}
		logChatEnd(r, lvl, http.StatusOK, start, nil)
	}
}

// handleChatError writes an error response unless the stream already started,
// in which case the status line is gone and the error is only logged.
func handleChatError(w http.ResponseWriter, r *http.Request, lvl LogLevel, start time.Time, err error, started bool) {
	// Client went away or the server is shutting down: nothing to write.
	if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
		logChatEnd(r, lvl, 499, start, err)
		return
	}
	status := statusFor(err)
	if manager.IsBusy(err) {
		IncrementBackpressure("busy")
	}
	if started {
		logChatEnd(r, lvl, http.StatusOK, start, err)
		return
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "inference timed out"
	}
	writeJSONError(w, status, msg)
	logChatEnd(r, lvl, status, start, err)
}

// sseWriter commits event-stream headers on the first write so errors
// returned before any output can still be sent as JSON.
type sseWriter struct {
	w       http.ResponseWriter
	started bool
}

func (s *sseWriter) Write(p []byte) (int, error) {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", sse.ContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	return s.w.Write(p)
}
