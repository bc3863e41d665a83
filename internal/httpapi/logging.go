package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// zlog is an optional structured logger. If unset, the global zerolog
// logger is used.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func logger() *zerolog.Logger {
	if zlog != nil {
		return zlog
	}
	return &log.Logger
}

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
var defaultLogLevel = parseLevel(os.Getenv("APYD_LOG_LEVEL"))

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

// requestLog carries the per-request level and start time for the
// start/end lines of one handler.
type requestLog struct {
	r     *http.Request
	lvl   LogLevel
	start time.Time
	name  string
}

func newRequestLog(r *http.Request, name string) *requestLog {
	return &requestLog{r: r, lvl: requestLogLevel(r), start: time.Now(), name: name}
}

func (rl *requestLog) event(e *zerolog.Event) *zerolog.Event {
	if rid := middleware.GetReqID(rl.r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

func (rl *requestLog) begin(target string, size int) {
	if rl.lvl < LevelInfo {
		return
	}
	rl.event(logger().Info()).Str("path", rl.r.URL.Path).Str("target", target).Int("bytes", size).Msg(rl.name + " start")
}

func (rl *requestLog) end(status int, err error) {
	if rl.lvl == LevelOff || (rl.lvl == LevelError && err == nil) {
		return
	}
	e := logger().Info()
	if err != nil && rl.lvl == LevelError {
		e = logger().Error()
	}
	rl.event(e).Int("status", status).Dur("dur", time.Since(rl.start)).Err(err).Msg(rl.name + " end")
}

// output logs a handler result line by line when the request asked for debug.
func (rl *requestLog) output(text string) {
	if rl.lvl < LevelDebug {
		return
	}
	lw := &loggingLineWriter{prefix: rl.name + "> "}
	_, _ = lw.Write([]byte(text))
	lw.Flush()
}

// loggingLineWriter logs complete lines to the HTTP logger.
type loggingLineWriter struct {
	prefix string
	buf    []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if idx > 0 {
			logger().Info().Msg(lw.prefix + string(lw.buf[:idx]))
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// Flush logs a trailing partial line.
func (lw *loggingLineWriter) Flush() {
	if len(lw.buf) > 0 {
		logger().Info().Msg(lw.prefix + string(lw.buf))
		lw.buf = nil
	}
}
