package h1b

import "context"

// Source is the remote H1B table the facade reads through.
type Source interface {
	// QueryPage returns one page of matching records with the exact total.
	QueryPage(ctx context.Context, f Filters, p Pagination) (PaginatedResult[Record], error)
	// Distinct returns the sorted, deduplicated non-empty values of field.
	// limit <= 0 means no limit.
	Distinct(ctx context.Context, field Field, limit int) ([]string, error)
	// Sample returns up to limit matching records in source order.
	Sample(ctx context.Context, f Filters, limit int) ([]Record, error)
	// Export returns up to limit matching records ordered by id descending.
	Export(ctx context.Context, f Filters, limit int) ([]Record, error)
}
