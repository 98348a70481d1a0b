package updater

import (
	"errors"

	"liquid-node/features"
)

// Rejection reasons. Every error returned by ProcessBlock, ProcessMicroBlock
// and RemoveAfter for an invalid unit wraps exactly one of these.
var (
	// ErrBadReference means the unit does not chain from any known tip.
	ErrBadReference = errors.New("references incorrect or non-existing block")
	// ErrNotBetterCompetitor means a competing block at the same height lost the fork choice.
	ErrNotBetterCompetitor = errors.New("competitor block is not better than existing")
	// ErrInvalidForgedSignature means the block rebuilt from the microblock chain does not verify.
	ErrInvalidForgedSignature = errors.New("forged block has invalid signature")
	// ErrMicroBlockLinkage covers wrong generator, wrong previous id and bad signatures.
	ErrMicroBlockLinkage = errors.New("microblock rejected")
	// ErrDiffComputation wraps a rejection from diff computation.
	ErrDiffComputation = errors.New("diff computation failed")
	// ErrUnsupportedFeatureActive means the chain activated a feature this node lacks.
	ErrUnsupportedFeatureActive = features.ErrUnsupportedFeatureActive
)

// IsValidationError reports whether err is a rejection of the submitted
// unit rather than an internal failure.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrBadReference,
		ErrNotBetterCompetitor,
		ErrInvalidForgedSignature,
		ErrMicroBlockLinkage,
		ErrDiffComputation,
		ErrUnsupportedFeatureActive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
