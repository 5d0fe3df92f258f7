// Package storage persists the bot's full state snapshot.
//
// Drivers implement atomic replace semantics: after a crash the stored
// snapshot is either the previous or the new one, never a partial write.
package storage
