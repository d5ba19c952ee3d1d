package av1

import (
	"context"
	"errors"
	"fmt"

	"github.com/deepteams/av1/internal/encoder"
	"github.com/deepteams/av1/internal/ratectl"
	"github.com/deepteams/av1/internal/refs"
)

// Errors returned by the encoder. Errors from a session wrap one of these
// and can be tested with errors.Is.
var (
	// ErrInvalidConfig reports options or sequence parameters rejected
	// before any picture is coded.
	ErrInvalidConfig = errors.New("av1: invalid configuration")
	// ErrResourceExhausted reports that the reference pool ran out of
	// buffers. The session cannot continue.
	ErrResourceExhausted = errors.New("av1: resources exhausted")
	// ErrBitstreamViolation reports an internal contract breach, such as a
	// coefficient outside the representable range. Output produced after it
	// would be meaningless, so the session is aborted.
	ErrBitstreamViolation = errors.New("av1: bitstream invariant violated")
	// ErrSessionClosed is returned by calls after Flush or Close.
	ErrSessionClosed = errors.New("av1: session closed")
	// ErrFrameSize reports a picture whose planes do not match the
	// sequence parameters.
	ErrFrameSize = errors.New("av1: picture does not match the sequence")
	// ErrPictureOrder reports a picture submitted out of display order.
	ErrPictureOrder = errors.New("av1: picture out of display order")
)

// mapError wraps err with the sentinel of its class.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var kind error
	switch {
	case errors.Is(err, encoder.ErrConfig), errors.Is(err, ratectl.ErrConfig), errors.Is(err, ratectl.ErrStatsFormat):
		kind = ErrInvalidConfig
	case errors.Is(err, refs.ErrSlotsExhausted):
		kind = ErrResourceExhausted
	case errors.Is(err, encoder.ErrBitstream), errors.Is(err, ratectl.ErrMissingResult), errors.Is(err, refs.ErrEmptySlot):
		kind = ErrBitstreamViolation
	case errors.Is(err, encoder.ErrClosed):
		kind = ErrSessionClosed
	case errors.Is(err, encoder.ErrFrameSize):
		kind = ErrFrameSize
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("av1: %w", err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}
