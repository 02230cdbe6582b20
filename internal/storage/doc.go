package storage

// Package storage persists the session's credential blob.
//
// The session client emits a fresh blob on every credential update; losing
// one risks server-side session invalidation, so saves happen before the
// update is considered acknowledged.
