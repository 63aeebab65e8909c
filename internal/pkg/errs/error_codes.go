/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both internally
and in events sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002
)

// 2xxx: Messaging Business Logic Errors
const (
	// ErrMissingMessageFields indicates a send request without a receiver or text.
	ErrMissingMessageFields = 2001

	// ErrMissingReadFields indicates a mark-as-read request without a chat or message id.
	ErrMissingReadFields = 2002

	// ErrRecipientNotFound indicates that the addressed receiver does not resolve to a user.
	ErrRecipientNotFound = 2003

	// ErrMessageNotFoundOrForbidden collapses "chat/message not found", "not a
	// participant" and "own message" into one signal so that chat existence is
	// not leaked to non-participants.
	ErrMessageNotFoundOrForbidden = 2004
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthenticated indicates that no identity source yielded a user for the connection.
	ErrUnauthenticated = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
