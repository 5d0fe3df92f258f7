package store

import "errors"

var (
	// ErrNotFound covers unknown user/channel ids.
	ErrNotFound = errors.New("not found")

	// ErrChannelExists rejects creating a channel under an existing id.
	ErrChannelExists = errors.New("channel already exists")

	// ErrDuplicateLocation rejects enqueueing a media location the channel
	// has ever seen before.
	ErrDuplicateLocation = errors.New("media location already used")

	// ErrQueueEmpty signals a dequeue from an empty channel queue.
	ErrQueueEmpty = errors.New("media queue empty")

	// ErrOwnerImmutable rejects removing or re-roling the bootstrap owner.
	ErrOwnerImmutable = errors.New("owner cannot be modified")

	// ErrNotModerator rejects channel grant operations on non-moderators.
	ErrNotModerator = errors.New("user is not a moderator")

	// ErrNoSession signals a session operation without an active session.
	ErrNoSession = errors.New("no active session")

	// ErrWrongSession signals a session operation against the wrong workflow.
	ErrWrongSession = errors.New("operation not valid for current session")
)

// persistError marks a failed durable write. The in-memory state is left at
// the pre-mutation value when this is returned.
type persistError struct{ err error }

func (e *persistError) Error() string { return "persist state: " + e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

// IsPersistFailure reports whether err came from the durable write rather
// than the mutation itself.
func IsPersistFailure(err error) bool {
	var pe *persistError
	return errors.As(err, &pe)
}
