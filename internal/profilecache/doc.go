// Package profilecache coordinates profile builds per CacheKey.
//
// Lookup returns a previously built profile from the store. GetOrBuild returns
// the stored profile when present and otherwise runs the supplied builder,
// guaranteeing that concurrent callers for the same key share one build: the
// first caller starts it, later callers wait on the in-flight entry, and every
// waiter observes the same profile or the same error. The in-flight entry is
// deregistered when the build finishes either way, so a failed build never
// blocks a later retry.
//
// Builds run detached from the caller's cancellation. A waiter whose context
// ends stops waiting and gets its context error while the build continues and
// still writes its result to the store.
package profilecache
