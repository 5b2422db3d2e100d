package mailqueue

import "context"

// Store persists queue entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
}
