package pack

import (
	"context"

	"stempack/internal/archive"
)

// runSequential packages stems one at a time in stem order.
func (r *runner) runSequential(ctx context.Context, stems []string) []archive.Result {
	results := make([]archive.Result, 0, len(stems))
	for _, stemName := range stems {
		res := r.execute(ctx, stemName)
		r.emitResult(res)
		results = append(results, res)
	}
	return results
}
