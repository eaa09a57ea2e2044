// Package errors provides structured error handling for epoch operations.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Epoch lookup errors
	CodeEpochNotFound  Code = "EPOCH_NOT_FOUND"
	CodeEpochInvalidID Code = "EPOCH_INVALID_ID"

	// Epoch lifecycle errors
	CodeEpochNotJoinable   Code = "EPOCH_NOT_JOINABLE"
	CodeEpochAlreadyJoined Code = "EPOCH_ALREADY_JOINED"
	CodeEpochClosed        Code = "EPOCH_CLOSED"

	// Capability errors
	CodeEpochFeatureNotSupported Code = "EPOCH_FEATURE_NOT_SUPPORTED"

	// Collaborator errors
	CodeEpochNetwork   Code = "EPOCH_NETWORK_ERROR"
	CodeEpochContract  Code = "EPOCH_CONTRACT_ERROR"
	CodeEpochStaleData Code = "EPOCH_STALE_DATA"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeEpochInvalidID:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeEpochNotJoinable,
		CodeEpochClosed,
		CodeEpochFeatureNotSupported:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeEpochNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeEpochAlreadyJoined:
		return codes.AlreadyExists

	// Unavailable - transient collaborator failures
	case CodeEpochNetwork,
		CodeEpochStaleData:
		return codes.Unavailable

	// Internal - registry contract failures
	case CodeEpochContract:
		return codes.Internal

	default:
		return codes.Unknown
	}
}

// Recoverable reports whether an operation failing with this code may be
// retried against the same epoch. Everything outside the transient
// collaborator codes is terminal for the current monitoring session.
func (c Code) Recoverable() bool {
	switch c {
	case CodeEpochNetwork, CodeEpochStaleData:
		return true
	default:
		return false
	}
}
