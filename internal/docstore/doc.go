// Package docstore provides the realtime document-collection service that
// Mission Control reads from and writes to.
//
// A collection is a named set of schemaless documents. Readers open a
// listener on a collection and receive the full, ordered list of documents
// every time it changes; writers create or merge-update one document at a
// time. The package is internal to Mission Control.
//
// The main components are:
//
//   - [Service]: the listener/write contract every backend implements
//   - [MemoryStore]: in-process realtime store
//   - [SQLiteStore]: [MemoryStore] persisted to a SQLite database
//   - [RemoteClient]: a [Service] backed by a Mission Control server over
//     websockets (listeners) and HTTP (writes)
//
// Snapshots handed to listeners are immutable: the store never mutates a
// document map after it has been delivered, so receivers may keep a
// reference to an old snapshot indefinitely.
package docstore
