package domain

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/ephemera.space/internal/platform/errors"
)

var (
	// ErrEpochNotFound indicates the epoch is not registered.
	ErrEpochNotFound = apperrors.New(apperrors.CodeEpochNotFound, "epoch is not registered")
	// ErrInvalidEpochID indicates a malformed epoch identifier.
	ErrInvalidEpochID = apperrors.New(apperrors.CodeEpochInvalidID, "epoch id must be positive")
	// ErrAlreadyJoined indicates the participant already joined the epoch.
	ErrAlreadyJoined = apperrors.New(apperrors.CodeEpochAlreadyJoined, "participant already joined this epoch")
	// ErrEpochClosed indicates the epoch no longer accepts the operation.
	ErrEpochClosed = apperrors.New(apperrors.CodeEpochClosed, "epoch is closed")
	// ErrStaleData indicates the local snapshot no longer matches the registry.
	ErrStaleData = apperrors.New(apperrors.CodeEpochStaleData, "epoch snapshot is stale")
)

// NotJoinableError builds the error for a join attempt against an epoch
// whose phase disallows joining.
func NotJoinableError(state State) *apperrors.Error {
	return apperrors.WithMetadata(
		apperrors.CodeEpochNotJoinable,
		fmt.Sprintf("epoch in state %q is not joinable", state),
		map[string]string{"state": state.String()},
	)
}

// FeatureNotSupportedError builds the error for a feature blocked by the
// epoch's capability tier.
func FeatureNotSupportedError(feature Feature, capability Capability) *apperrors.Error {
	return apperrors.WithMetadata(
		apperrors.CodeEpochFeatureNotSupported,
		fmt.Sprintf("feature %q requires a higher tier than %q", feature, capability),
		map[string]string{
			"feature":    string(feature),
			"capability": capability.String(),
		},
	)
}

// NetworkError wraps a transport failure from the epoch source.
func NetworkError(message string, cause error) *apperrors.Error {
	return apperrors.Wrap(apperrors.CodeEpochNetwork, message, cause)
}

// ContractError wraps a registry contract failure.
func ContractError(message string, cause error) *apperrors.Error {
	return apperrors.Wrap(apperrors.CodeEpochContract, message, cause)
}

// NotFoundError builds a lookup error carrying the missing id.
func NotFoundError(id int64) *apperrors.Error {
	return apperrors.WithMetadata(
		apperrors.CodeEpochNotFound,
		fmt.Sprintf("epoch %d is not registered", id),
		map[string]string{"epoch_id": strconv.FormatInt(id, 10)},
	)
}
