package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"reg-consumer/internal/consumer"
	"reg-consumer/internal/logging"
)

// maxStateWrite mirrors the page-sized limit of a sysfs attribute store.
const maxStateWrite = 4096

// Consumer is the attribute surface served over HTTP. Implementations must
// be safe to call concurrently.
type Consumer interface {
	Show() (string, error)
	Store(buf string) (int, error)
	Snapshot() consumer.Snapshot
}

func Handler(c Consumer, logs *logging.Buffer) http.Handler {
	mux := http.NewServeMux()
	started := time.Now().UTC()

	// The state attribute. Writes answer 200 whether or not the supply
	// accepted the transition; outcomes are in /api/status and the logs.
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			s, err := c.Show()
			if err != nil {
				writeUnavailable(w, err)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			_, _ = io.WriteString(w, s)
		case http.MethodPut, http.MethodPost:
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStateWrite))
			if err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					http.Error(w, "state write too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "read body failed", http.StatusBadRequest)
				return
			}
			if _, err := c.Store(string(body)); err != nil {
				writeUnavailable(w, err)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.Header().Set("Allow", "GET, HEAD, PUT, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, c.Snapshot())
	})

	if logs != nil {
		mux.Handle("/api/logs", LogsHandler(logs))
	}

	mux.Handle("/api/about", AboutHandler(started))

	return mux
}

func writeUnavailable(w http.ResponseWriter, err error) {
	if errors.Is(err, consumer.ErrNotAttached) {
		w.Header().Set("Retry-After", "1")
	}
	http.Error(w, err.Error(), http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// Serve runs the HTTP server until ctx is canceled.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
