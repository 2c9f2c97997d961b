package registry

import (
	"context"
	"fmt"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/chain"
)

// AssertShared checks that objectID exists and is a shared object, so it can
// be passed as the mutable registry argument of a move call.
func AssertShared(ctx context.Context, reader chain.Reader, objectID string) error {
	obj, err := reader.GetObject(ctx, objectID)
	if err != nil {
		return &PreconditionError{
			Kind:    ErrPrecondition,
			Message: fmt.Sprintf("Failed to verify GlobalRegistry object: %v", err),
		}
	}
	if obj == nil {
		return &PreconditionError{
			Kind:    ErrObjectNotFound,
			Message: fmt.Sprintf("GlobalRegistry object not found: %s", objectID),
		}
	}
	if !obj.Owner.IsShared() {
		return &PreconditionError{
			Kind:    ErrNotShared,
			Message: fmt.Sprintf("Object %s is not a shared object", objectID),
		}
	}
	return nil
}
