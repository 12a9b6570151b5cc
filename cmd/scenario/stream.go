package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/viant/scenario/internal/job"
)

// StreamCmd starts a job and follows its stream.
// Usage: scenario stream -i params.json
type StreamCmd struct {
	Input string `short:"i" long:"input" description:"scenario parameters JSON path or URL"`
	Get   bool   `long:"get" description:"open the stream with GET instead of POST"`
	Trace string `short:"t" long:"trace" description:"write job events as JSON lines to this file"`
}

func (s *StreamCmd) Execute(_ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	if s.Get {
		e.config.Stream.Method = http.MethodGet
	}
	payload, err := s.payload(ctx, e)
	if err != nil {
		e.Close()
		return err
	}
	wait, err := e.trace(s.Trace)
	if err != nil {
		e.Close()
		return err
	}
	err = e.follow(ctx, os.Stdout, func(cb job.Callbacks) (string, error) {
		return e.service.StartStream(context.Background(), payload, cb)
	})
	e.Close()
	wait()
	return err
}

func (s *StreamCmd) payload(ctx context.Context, e *env) (interface{}, error) {
	if s.Input == "" {
		return nil, nil
	}
	data, err := e.fs.DownloadWithURL(ctx, s.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input %s: %w", s.Input, err)
	}
	var ret json.RawMessage
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("invalid input %s: %w", s.Input, err)
	}
	return ret, nil
}
