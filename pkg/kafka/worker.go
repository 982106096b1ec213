package kafka

import "context"

// Worker runs a consumer for the lifetime of the application and closes it
// once Run returns.
type Worker struct {
	name     string
	consumer *Consumer
}

func NewWorker(name string, consumer *Consumer) *Worker {
	return &Worker{name: name, consumer: consumer}
}

func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) Run(ctx context.Context) error {
	err := w.consumer.Start(ctx)
	if closeErr := w.consumer.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
