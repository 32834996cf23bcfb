package model

// FailureType enumerates the kinds of patch-phase failure the Patch
// Feedback Controller classifies and deduplicates.
type FailureType string

const (
	FailureFormatError      FailureType = "format_error"
	FailureApplyError       FailureType = "apply_error"
	FailureCompileError     FailureType = "compile_error"
	FailureCandidateError   FailureType = "candidate_error"
	FailureValidationFailed FailureType = "validation_failed"
	FailureGreenFailed      FailureType = "green_failed"
	FailureEmptyPatch       FailureType = "empty_patch"
)

// FailureSignature identifies one failure occurrence for repeat
// detection. Two signatures are identical iff their Type matches and
// their first 200 signature characters match.
type FailureSignature struct {
	Type      FailureType
	Signature string
}

// sigPrefixLen is the number of leading signature characters compared for
// equality, per spec §3.
const sigPrefixLen = 200

func sigPrefix(s string) string {
	if len(s) <= sigPrefixLen {
		return s
	}
	return s[:sigPrefixLen]
}

// Equal reports whether two signatures are identical under the spec's
// rule: same Type, and first 200 characters of Signature match.
func (f FailureSignature) Equal(other FailureSignature) bool {
	return f.Type == other.Type && sigPrefix(f.Signature) == sigPrefix(other.Signature)
}
