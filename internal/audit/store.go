package audit

import "context"

// Store persists audit entries. Entries are appended and read, never changed.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
	Summary(ctx context.Context, f Filter) ([]SummaryRow, error)
}
