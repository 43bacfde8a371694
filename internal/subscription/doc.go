// Package subscription keeps live, read-only copies of remote document
// collections and tells interested callers when they change.
//
// A [Manager] owns the connection to a [docstore.Service] and shares one
// remote listener per collection name between every [Handle] that asks for
// it. The listener is reference counted; the last release closes it.
//
// Callers work through a [Store]. [Store.Subscribe] returns a [Handle]
// immediately in the Loading state. Each snapshot from the remote replaces
// the handle's document list wholesale; a transport failure moves the handle
// to Errored while keeping any documents it already had. Nothing retries:
// subscribe again to get a fresh listener.
//
// Unsubscribing a handle is terminal. Once [Handle.Unsubscribe] returns no
// further change callback starts for that handle and its accessors panic
// with [ErrInvalidHandle].
package subscription
