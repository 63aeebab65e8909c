/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to
standardize responses and internal error handling. Messages match the wire
strings clients already parse.
*/
package errs

import "net/http"

// errorMap stores the CustomError corresponding to every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Messaging Business Logic Errors
	ErrMissingMessageFields:       {Code: ErrMissingMessageFields, Message: "Missing receiver or text"},
	ErrMissingReadFields:          {Code: ErrMissingReadFields, Message: "Missing chatId or messageId"},
	ErrRecipientNotFound:          {Code: ErrRecipientNotFound, Message: "Recipient not found"},
	ErrMessageNotFoundOrForbidden: {Code: ErrMessageNotFoundOrForbidden, Message: "Message not found or you are not a participant"},

	// 3xxx: User, Session, and Security Errors
	ErrUnauthenticated: {Code: ErrUnauthenticated, Message: "Authentication required", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Internal server error", Status: http.StatusInternalServerError},
}
