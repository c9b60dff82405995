package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedHeader marks headers whose identity fields cannot be derived.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrStoreUnavailable marks document store failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrBrokerUnavailable marks broker connection or publish failures.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrSnapshot marks disk snapshot write failures.
	ErrSnapshot = errors.New("snapshot write failed")
	// ErrQuarantine marks a failure to route a message to quarantine.
	ErrQuarantine = errors.New("quarantine failed")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrStoreUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an ingestion error must stop message consumption
// instead of quarantining the message.
func IsFatal(err error) bool {
	return errors.Is(err, ErrQuarantine) || errors.Is(err, ErrSnapshot)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
