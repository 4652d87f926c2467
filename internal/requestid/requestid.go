// Package requestid tags each HTTP request with a correlation id, so a
// sender's POST and the receiver's matching poll can be tied together in
// the logs.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Generate returns a new compact request id.
func Generate() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// With returns a context carrying the given request id.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the request id carried by ctx, or "" when absent.
func From(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
