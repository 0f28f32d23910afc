package harvest

import (
	"context"
	"errors"

	"androidinfo/internal/versions"
)

// Task harvests one dataset from one resolved tree reference. ref is a
// concrete build tag or source.MainRef. Implementations return
// ErrNotFound when the tree lacks the expected data and never retry
// internally.
type Task[T any] interface {
	Harvest(ctx context.Context, ref string) (T, error)
}

// ResolveLatest finds the newest point version of a release whose tag
// harvests successfully. Versions are walked newest-first; versions
// without a tag are skipped without a harvest attempt; ErrNotFound from
// the task falls through to the next older version; any other error
// aborts the search immediately. The first success wins; older
// versions are never tried after one. Exhausting every version returns
// ErrNotFound for the release as a whole.
func ResolveLatest[T any](ctx context.Context, catalog *versions.Catalog, level versions.APILevel, task Task[T]) (T, *versions.BuildVersion, error) {
	var zero T
	for i := len(level.Versions) - 1; i >= 0; i-- {
		build := catalog.LatestBuildVersion(level.Versions[i])
		if build == nil {
			continue
		}
		out, err := task.Harvest(ctx, build.Tag)
		if err == nil {
			return out, build, nil
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return zero, nil, err
	}
	return zero, nil, ErrNotFound
}
