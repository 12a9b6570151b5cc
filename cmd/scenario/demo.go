package scenario

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/viant/scenario/internal/demo"
	"github.com/viant/scenario/internal/job"
)

// DemoCmd plays a scripted job locally.
// Usage: scenario demo [-s script.yaml]
type DemoCmd struct {
	Script string `short:"s" long:"script" description:"demo script YAML path or URL (built-in timeline when empty)"`
	Trace  string `short:"t" long:"trace" description:"write job events as JSON lines to this file"`
}

func (d *DemoCmd) Execute(_ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	var entries []demo.Entry
	if d.Script != "" {
		if entries, err = demo.Load(ctx, e.fs, d.Script); err != nil {
			e.Close()
			return err
		}
	}
	wait, err := e.trace(d.Trace)
	if err != nil {
		e.Close()
		return err
	}
	err = e.follow(ctx, os.Stdout, func(cb job.Callbacks) (string, error) {
		return e.service.StartDemo(context.Background(), entries, cb)
	})
	e.Close()
	wait()
	return err
}
