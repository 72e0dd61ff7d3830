package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrMalformedInput        = errors.New("malformed input")
	ErrStoreNotReady         = errors.New("store not ready")
	ErrIngestionAborted      = errors.New("ingestion aborted")
	ErrInvalidInput          = errors.New("invalid input")
	ErrConfiguration         = errors.New("configuration error")
	ErrTimeout               = errors.New("timeout")
	ErrJobInFlight           = errors.New("job already in flight")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrCapabilityUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// CapabilityFailure tags a failed call to an external capability. Deadline and
// network timeouts additionally carry ErrTimeout; both classify as
// ErrCapabilityUnavailable.
func CapabilityFailure(stage, operation string, err error) error {
	if IsTimeout(err) {
		return fmt.Errorf("%w: %w: %s: %w", ErrCapabilityUnavailable, ErrTimeout, buildDetail(stage, operation, ""), err)
	}
	return Wrap(ErrCapabilityUnavailable, stage, operation, "", err)
}

// IsTimeout reports whether err stems from an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Kind returns a short classification label for err, used in structured logs
// and CLI output.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStoreNotReady):
		return "not_ready"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrIngestionAborted):
		return "ingestion_aborted"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrJobInFlight):
		return "busy"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCapabilityUnavailable):
		return "capability_unavailable"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
