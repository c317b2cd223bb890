package fixcodec

import "errors"

// Errors returned by the outgoing builder.
var (
	// ErrDuplicateTag is returned by SetField when the same tag has
	// already been written during the current build.
	ErrDuplicateTag = errors.New("fixcodec: duplicate tag in build")

	// ErrBuilderNotInUse is returned by operations on a builder that has
	// not been acquired (or has already been released) from its pool.
	ErrBuilderNotInUse = errors.New("fixcodec: builder not in use")

	// ErrTagOutOfRange is returned when a tag exceeds the builder's
	// configured max-tag bitmap size.
	ErrTagOutOfRange = errors.New("fixcodec: tag exceeds max tag")
)

// Errors returned by the incoming flyweight.
var (
	ErrFieldNotPresent = errors.New("fixcodec: field not present")
	ErrMalformedField  = errors.New("fixcodec: malformed field")
)

// FrameStatus is the result of a single Parser.TryReadFrame call. Positive
// values report the length of a successfully extracted frame; zero means
// "need more data"; negative values are the frame-level error codes from
// the spec's frame-extraction algorithm.
type FrameStatus int

const (
	// FrameNeedMoreData means the accumulation buffer does not yet hold a
	// complete frame; the caller should read more bytes and call AddData.
	FrameNeedMoreData FrameStatus = 0

	// FrameErrNoHeader means the buffer, once the "8=FIX" prefix was
	// located, does not have a well-formed BeginString/BodyLength header
	// (e.g. "9=" did not immediately follow BeginString, or BodyLength is
	// not a valid decimal integer).
	FrameErrNoHeader FrameStatus = -1

	// FrameErrChecksumMisaligned means the "10=" checksum tag did not
	// begin at the position BodyLength implied.
	FrameErrChecksumMisaligned FrameStatus = -2

	// FrameErrChecksumMalformed means the three bytes following "10=" were
	// not all ASCII digits.
	FrameErrChecksumMalformed FrameStatus = -3

	// FrameErrChecksumMismatch means the recomputed checksum did not match
	// the value on the wire.
	FrameErrChecksumMismatch FrameStatus = -4
)

// Error implements the error interface so a FrameStatus can be returned
// directly as an error when it is negative.
func (s FrameStatus) Error() string {
	switch s {
	case FrameNeedMoreData:
		return "fixcodec: need more data"
	case FrameErrNoHeader:
		return "fixcodec: invalid or missing frame header"
	case FrameErrChecksumMisaligned:
		return "fixcodec: checksum field misaligned"
	case FrameErrChecksumMalformed:
		return "fixcodec: malformed checksum digits"
	case FrameErrChecksumMismatch:
		return "fixcodec: checksum mismatch"
	default:
		return "fixcodec: frame extracted"
	}
}
