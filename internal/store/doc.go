// Package store is the single authority over persistent bot state.
//
// It owns users (with the tiered role model), channels (schedules, media
// queues, used-location sets) and per-user workflow sessions. Mutations are
// serialized behind one mutex, applied to a cloned state, durably persisted
// via the storage backend, and only then committed, so the inbound update
// router and the background post scheduler can mutate concurrently without
// losing updates or persisting torn state.
package store
