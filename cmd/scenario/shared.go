package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viant/afs"
	"github.com/viant/scenario/internal/config"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/log"
	"github.com/viant/scenario/internal/obs"
	"github.com/viant/scenario/service"
)

var (
	cfgMu   sync.RWMutex
	cfgPath string
)

// called from CLI before flag parsing
func setConfigPath(p string) {
	cfgMu.Lock()
	cfgPath = p
	cfgMu.Unlock()
}

// env bundles the service with the process-level resources it depends on.
type env struct {
	fs      afs.Service
	config  *config.Config
	logger  *slog.Logger
	service *service.Service
	server  *http.Server
}

func newEnv(ctx context.Context) (*env, error) {
	cfgMu.RLock()
	path := cfgPath
	cfgMu.RUnlock()

	ret := &env{fs: afs.New(), config: config.Default()}
	if path != "" {
		cfg, err := config.Load(ctx, ret.fs, path)
		if err != nil {
			return nil, err
		}
		ret.config = cfg
	}
	logger, err := ret.config.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}
	ret.logger = logger

	var metrics obs.Metrics = obs.NoopMetrics{}
	if addr := ret.config.Metrics.Addr; addr != "" {
		reg := prometheus.NewRegistry()
		p, err := obs.NewPrometheus(reg)
		if err != nil {
			return nil, err
		}
		metrics = p
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		ret.server = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := ret.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		logger.Info("metrics server listening", "addr", addr)
	}
	ret.service = service.New(ret.config,
		service.WithLogger(logger),
		service.WithMetrics(metrics),
		service.WithFS(ret.fs),
	)
	return ret, nil
}

func (e *env) Close() {
	e.service.Close()
	if e.server != nil {
		_ = e.server.Shutdown(context.Background())
	}
}

// trace writes every job event as JSON lines to URL when set. The returned
// function waits until the sink is drained; call it after Close.
func (e *env) trace(URL string) (func(), error) {
	if URL == "" {
		return func() {}, nil
	}
	f, err := os.Create(URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file %s: %w", URL, err)
	}
	done := log.FileSink(e.service.Events(), f)
	return func() {
		<-done
		_ = f.Close()
	}, nil
}

// follow renders job events to w until the job ends, ctx is done or the
// collector is closed. It returns the terminal error, if any.
func (e *env) follow(ctx context.Context, w io.Writer, start func(cb job.Callbacks) (string, error)) error {
	events := e.service.Subscribe(100)
	defer e.service.Unsubscribe(events)
	result := make(chan error, 1)
	id, err := start(job.Callbacks{
		OnComplete: func() { result <- nil },
		OnError:    func(err *job.Error) { result <- err },
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "job %s started\n", id)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			render(w, ev)
		case err := <-result:
			drain(w, events)
			return e.report(w, err)
		case <-ctx.Done():
			err := e.service.Cancel(context.Background())
			fmt.Fprintf(w, "job %s cancelled\n", id)
			return err
		}
	}
}

func drain(w io.Writer, events <-chan log.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			render(w, ev)
		default:
			return
		}
	}
}

func (e *env) report(w io.Writer, err error) error {
	for _, c := range e.service.Components() {
		line := fmt.Sprintf("  %-28s %s", c.ID, c.State)
		if c.Error != "" {
			line += " (" + c.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "job completed")
	return nil
}
