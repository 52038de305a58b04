package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// NewWorker builds a worker for one job family, applying the family's
// concurrency and jobs-per-minute limits from PolicyFor. The worker is not
// started; the supervisor owns its lifecycle.
func NewWorker(c client.Client, queue string) (worker.Worker, error) {
	if err := ValidateQueue(queue); err != nil {
		return nil, err
	}

	policy := PolicyFor(queue)
	options := worker.Options{
		MaxConcurrentActivityExecutionSize: policy.MaxConcurrentActivities,
		TaskQueueActivitiesPerSecond:       policy.ActivitiesPerSecond,
	}
	return worker.New(c, queue, options), nil
}

// Registration binds one family's workflows and activities.
type Registration struct {
	Queue      string
	Workflows  []interface{}
	Activities []interface{}
}

// BuildWorkers constructs one worker per registration, keyed by queue.
func BuildWorkers(c client.Client, registrations []Registration) (map[string]worker.Worker, error) {
	workers := make(map[string]worker.Worker, len(registrations))
	for _, reg := range registrations {
		if _, ok := workers[reg.Queue]; ok {
			return nil, fmt.Errorf("duplicate worker registration for queue %q", reg.Queue)
		}
		w, err := NewWorker(c, reg.Queue)
		if err != nil {
			return nil, err
		}
		for _, wf := range reg.Workflows {
			w.RegisterWorkflow(wf)
		}
		for _, act := range reg.Activities {
			w.RegisterActivity(act)
		}
		workers[reg.Queue] = w
	}
	return workers, nil
}
