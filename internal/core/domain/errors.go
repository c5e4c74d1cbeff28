package domain

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound          = errors.New("file record not found")
	ErrNotEligible           = errors.New("file not eligible for processing")
	ErrInvalidInput          = errors.New("invalid input")
	ErrTemporary             = errors.New("temporary failure")
	ErrObjectNotFound        = errors.New("stored object not found")
	ErrPermissionDenied      = errors.New("storage access denied")
	ErrDecryptFailed         = errors.New("decryption failed")
	ErrNoActiveKnowledgeBase = errors.New("no active knowledge base configured")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
