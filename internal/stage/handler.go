package stage

import (
	"context"

	"cliply/internal/queue"
)

// Handler describes the contract the workflow manager needs from each task
// handler. Prepare validates inputs before Execute does the slow work;
// the manager records results and failures, so Execute mutates the task
// in place and returns an error classified by the services sentinels.
type Handler interface {
	// Type reports which tasks this handler consumes.
	Type() queue.TaskType
	Prepare(context.Context, *queue.Task) error
	Execute(context.Context, *queue.Task) (queue.Result, error)
	HealthCheck(context.Context) Health
}
