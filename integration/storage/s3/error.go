package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrNotFound is returned when the requested key does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidConfig is returned when bucket or region is missing.
	ErrInvalidConfig = errors.New("invalid object store configuration")

	// ErrInvalidKey is returned for keys that escape the store prefix.
	ErrInvalidKey = errors.New("invalid object key")

	// ErrAccessDenied is returned when credentials lack permission.
	ErrAccessDenied = errors.New("object store access denied")

	// ErrUnavailable is returned for throttling and availability faults;
	// these are the transient class pkg/retry is allowed to retry.
	ErrUnavailable = errors.New("object store unavailable")

	// ErrPaginatorNil is returned when a mock client is used without a
	// paginator factory.
	ErrPaginatorNil = errors.New("paginator factory returned nil")
)

// classify converts SDK errors to this package's error taxonomy. Keys
// absent from the bucket become ErrNotFound; throttling and availability
// faults become ErrUnavailable so boundary retry can identify them.
func classify(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s", ErrNotFound, operation)
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", ErrNotFound, operation)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrNotFound, operation)
		case "AccessDenied":
			return fmt.Errorf("%w: %s", ErrAccessDenied, operation)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout":
			return fmt.Errorf("%w: %s (code %s)", ErrUnavailable, operation, apiErr.ErrorCode())
		default:
			return fmt.Errorf("%s failed (code %s): %w", operation, apiErr.ErrorCode(), err)
		}
	}

	return fmt.Errorf("%s failed: %w", operation, err)
}
