// Package watcher mirrors the directory structure of one or more trees by
// consuming inotify events.
//
// An Engine owns a Cache of watched directories, the RootSet it was started
// with and the kernel notification Channel. Events are applied incrementally;
// split rename pairs are correlated with one record of lookahead and, when
// the cache can no longer be trusted, the channel and cache are rebuilt from
// a full walk of the surviving roots. All state is owned by the goroutine
// running Engine.Run; other goroutines reach it through Engine.Do.
//
// The package targets Linux.
package watcher
