/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
)

const RequestIDHeader = `X-Request-Id`

type requestIDKey struct{}

// RequestIDFromContext returns the request id attached by the request id middleware.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// LogContextExtractor adds the request id of the current request (if any) to every context aware log line.
func LogContextExtractor(ctx context.Context) []interface{} {
	if id, ok := RequestIDFromContext(ctx); ok {
		return []interface{}{fmt.Sprintf(`request-id: %s`, id)}
	}

	return nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == `` {
			id = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type instrumentation struct {
	requests metrics.Counter
	latency  metrics.Observer
	logger   log.Logger
}

func newInstrumentation(reporter metrics.Reporter, logger log.Logger) *instrumentation {
	return &instrumentation{
		requests: reporter.Counter(metrics.MetricConf{
			Path:   `http_requests_total`,
			Labels: []string{`route`, `status`},
		}),
		latency: reporter.Observer(metrics.MetricConf{
			Path:   `http_request_latency_microseconds`,
			Labels: []string{`route`},
		}),
		logger: logger,
	}
}

func (ins *instrumentation) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		route := `unmatched`
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		status := `dropped`
		if sw.status != 0 {
			status = strconv.Itoa(sw.status)
		}

		ins.requests.Count(1, map[string]string{`route`: route, `status`: status})
		ins.latency.Observe(float64(time.Since(begin).Microseconds()), map[string]string{`route`: route})
		ins.logger.DebugContext(r.Context(), fmt.Sprintf(`%s %s %s took %s`, r.Method, r.URL.Path, status, time.Since(begin)))
	})
}

func (ins *instrumentation) close() {
	ins.requests.UnRegister()
	ins.latency.UnRegister()
}

// recoveryLogger adapts log.Logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger log.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error(fmt.Sprintf(`handler panicked: %s`, fmt.Sprint(v...)))
}
