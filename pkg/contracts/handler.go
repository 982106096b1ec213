package contracts

import (
	"context"

	"github.com/julienschmidt/httprouter"
)

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Worker is a background loop owned by the application. Run blocks until
// ctx is cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
