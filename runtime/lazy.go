package runtime

import "sync"

// Lazy returns a function that calls init at most once and caches the
// result, under the name the `lazy` directive's declarations use. It is a
// thin alias of sync.OnceValue kept for naming continuity with the
// directive rather than because the standard primitive is insufficient.
func Lazy[T any](init func() T) func() T {
	return sync.OnceValue(init)
}
