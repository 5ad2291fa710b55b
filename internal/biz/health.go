package biz

import "context"

// DependencyChecker reports the status of storage dependencies by name.
// Implementation is in data layer (data.Data).
type DependencyChecker interface {
	Ping(ctx context.Context) map[string]string
}
