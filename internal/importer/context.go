package importer

import "context"

type importIDKey struct{}

// WithImportID sets the id ProcessCSV uses for logs and errors. Without
// one, ProcessCSV generates a fresh UUID per call.
func WithImportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, importIDKey{}, id)
}

// ImportIDFromContext returns the id set by WithImportID, if any.
func ImportIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(importIDKey{}).(string)
	return id, ok && id != ""
}
