package scheduler

import "context"

// pageSource abstracts the count-then-page read pattern every sweep shares.
// Count is an upper bound taken before paging starts; rows transitioned
// mid-run simply stop matching on a later tick.
type pageSource[T any] struct {
	count func(ctx context.Context) (int, error)
	fetch func(ctx context.Context, offset, limit int) ([]T, error)
}

// forEachPage walks the source page by page and hands each page to apply.
// A zero count is the common case and exits without a fetch. A failing page
// does not abort the walk; the first error is reported after all pages ran.
func forEachPage[T any](ctx context.Context, src pageSource[T], pageSize int, apply func(ctx context.Context, page []T) (int, error)) (int, error) {
	total, err := src.count(ctx)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	var rows int
	var firstErr error
	for offset := 0; offset < total; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		page, err := src.fetch(ctx, offset, pageSize)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(page) == 0 {
			break
		}
		n, err := apply(ctx, page)
		rows += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return rows, firstErr
}
