package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	zlogger "github.com/rs/zerolog/log"
)

// zlog is the structured logger used by the HTTP layer. Defaults to the
// zerolog global logger.
var zlog = &zlogger.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("RKLLMD_LOG_LEVEL"))

// SetDefaultLogLevel overrides the per-request log level used when a request
// carries no override.
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

func reqLogger(r *http.Request) zerolog.Logger {
	l := zlog.With().Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		l = l.Str("request_id", rid)
	}
	return l.Logger()
}

func logChatStart(r *http.Request, lvl LogLevel, messages int, stream bool) {
	if lvl < LevelInfo {
		return
	}
	l := reqLogger(r)
	l.Info().Int("messages", messages).Bool("stream", stream).Msg("chat start")
}

// logChatEnd replaces per-branch logging: errors log at LevelError and up,
// successes at LevelInfo and up.
func logChatEnd(r *http.Request, lvl LogLevel, status int, start time.Time, err error) {
	if lvl < LevelError || (err == nil && lvl < LevelInfo) {
		return
	}
	l := reqLogger(r)
	ev := l.Info()
	if err != nil {
		ev = l.Error().Err(err)
	}
	ev.Int("status", status).Dur("dur", time.Since(start)).Msg("chat end")
}

// loggingFrameWriter logs complete SSE data lines at debug level.
type loggingFrameWriter struct {
	buf []byte
	log zerolog.Logger
}

func (lw *loggingFrameWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		line := lw.buf[:idx]
		if len(line) > 0 {
			lw.log.Debug().Msgf("chat> %s", line)
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}
