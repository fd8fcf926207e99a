package metrics

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOptions configure the metrics listener.
type ServerOptions struct {
	Port int
	// Process names the binary on the index page ("server", "worker").
	Process string
	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Routes are extra GET endpoints. The worker has no other listener, so
	// its health handlers are mounted here.
	Routes map[string]http.HandlerFunc
}

var indexPage = template.Must(template.New("index").Parse(`<html><body>
<h1>PDF Chat {{.Process}}</h1>
<ul>{{range .Paths}}<li><a href="{{.}}">{{.}}</a></li>{{end}}</ul>
</body></html>`))

// Mux builds the metrics handler tree without listening.
func Mux(opts ServerOptions) *http.ServeMux {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	paths := []string{"/metrics"}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	for path, h := range opts.Routes {
		mux.HandleFunc("GET "+path, h)
		paths = append(paths, path)
	}
	sort.Strings(paths[1:])
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_ = indexPage.Execute(w, struct {
			Process string
			Paths   []string
		}{opts.Process, paths})
	})
	return mux
}

// StartServer binds the port before returning, so a clash between the
// server and worker on one host fails at startup, then serves in the
// background. The returned function shuts the listener down.
func StartServer(opts ServerOptions) (shutdown func(context.Context) error, err error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("binding metrics port %d: %w", opts.Port, err)
	}

	server := &http.Server{
		Handler:      Mux(opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", ln.Addr().String(), "process", opts.Process)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown, nil
}
