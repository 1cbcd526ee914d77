package recovery

import (
	"log/slog"
	"net/http"
)

// Handler wraps next so that a panicking request is answered with 500 and
// logged instead of killing the connection handler silently. fallback is
// written as the response body when headers were not sent yet.
func Handler(next http.Handler, fallback []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		err := Run(r.Method+" "+r.URL.Path, func() error {
			next.ServeHTTP(tw, r)
			return nil
		})
		if err == nil {
			return
		}
		if tw.wrote {
			slog.Warn("recovery.Handler: panic after response started", "path", r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(fallback)
	})
}

type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
