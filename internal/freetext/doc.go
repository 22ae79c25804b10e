// Package freetext implements a near-real-time text-indexing engine on top of
// Bleve.
//
// One writer mutates the index through Engine.Modify while any number of
// readers search against refcounted snapshots handed out by the searcher
// manager. Each successful mutation batch is tagged with a monotonic
// generation; a search that needs read-your-writes semantics waits for its
// generation to become visible before acquiring a snapshot.
//
// Two background tasks run for the lifetime of an engine: the reopen
// scheduler, which periodically produces a fresh snapshot when writes are
// pending, and the commit scheduler, which records the durable generation
// independently of snapshot visibility. Both are cancelled by Close and
// DeleteDirectory.
package freetext
