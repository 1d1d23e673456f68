/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1005

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1006
)

// 2xxx: Messaging Business Logic Errors
const (
	// ErrMessageNotFound indicates that the targeted message does not exist in the store.
	ErrMessageNotFound = 2101

	// ErrNotMessageParty indicates the requester is neither sender nor receiver of the message.
	ErrNotMessageParty = 2102

	// ErrNotMessageSender indicates the requester is not the original sender of the message.
	ErrNotMessageSender = 2103

	// ErrMessageNotPersisted indicates the operation targets a client-local optimistic
	// message that was never confirmed by the server.
	ErrMessageNotPersisted = 2104

	// ErrInvalidReaction indicates the reaction symbol is not on the allow-list.
	ErrInvalidReaction = 2105

	// ErrMessageContentTooLong indicates that the message body exceeded the maximum length limit.
	ErrMessageContentTooLong = 2106
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrAlreadyLoggedIn indicates the caller already holds a valid identity token.
	ErrAlreadyLoggedIn = 3001

	// ErrInvalidUsername indicates the username does not meet the format requirements.
	ErrInvalidUsername = 3002

	// ErrInvalidPassword indicates the password does not meet the length requirements.
	ErrInvalidPassword = 3003

	// ErrUserAlreadyExists indicates the username is already taken.
	ErrUserAlreadyExists = 3004

	// ErrInvalidCredentials indicates the username/password pair did not match.
	ErrInvalidCredentials = 3005

	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = 3006

	// ErrOldPasswordInvalid indicates the current password check failed during a password change.
	ErrOldPasswordInvalid = 3007

	// ErrUnauthorized indicates the request lacks a valid identity.
	ErrUnauthorized = 3008

	// ErrProofRequired indicates the request is missing a valid proof-of-work token.
	ErrProofRequired = 3009

	// ErrProofInvalid indicates the submitted proof-of-work solution failed validation.
	ErrProofInvalid = 3010
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreWrite indicates a persistence write against the backing store failed.
	ErrStoreWrite = 5001

	// ErrStoreRead indicates a read against the backing store failed.
	ErrStoreRead = 5002

	// ErrFileStorageFailed indicates an S3 storage operation failed.
	ErrFileStorageFailed = 5003
)
