// Package cache holds the client-side read replica of the backend article
// collection. ArticleCache replaces its snapshot wholesale on every successful
// fetch, keeps the filter that produced it, remembers the last good popularity
// aggregates, and notifies subscribers whenever the snapshot changes. An
// optional SnapshotStore persists the latest snapshot as a JSON file (written
// atomically) so a restarted client can render before its first fetch.
package cache
