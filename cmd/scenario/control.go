package scenario

import (
	"context"
	"fmt"

	"github.com/viant/scenario/internal/component"
)

// CancelCmd cancels a job started elsewhere.
type CancelCmd struct {
	ID string `long:"id" required:"true" description:"job request id"`
}

func (c *CancelCmd) Execute(_ []string) error {
	ctx := context.Background()
	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.service.CancelRemote(ctx, c.ID); err != nil {
		return err
	}
	fmt.Printf("job %s cancelled\n", c.ID)
	return nil
}

// RetryCmd asks the backend to regenerate one component.
type RetryCmd struct {
	ID        string `long:"id" required:"true" description:"job request id"`
	Component string `short:"c" long:"component" required:"true" description:"component id, e.g. chart_bar_emissions"`
}

func (r *RetryCmd) Execute(_ []string) error {
	id, err := component.Parse(r.Component)
	if err != nil {
		return err
	}
	ctx := context.Background()
	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.service.RetryRemote(ctx, r.ID, id); err != nil {
		return err
	}
	fmt.Printf("retry of %s requested for job %s\n", id, r.ID)
	return nil
}
