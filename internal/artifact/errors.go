package artifact

import "errors"

var (
	ErrFingerprint = errors.New("failed to fingerprint artifact")
	ErrPack        = errors.New("failed to package artifact")
	ErrPublish     = errors.New("failed to publish artifact")
	ErrConfig      = errors.New("invalid publisher configuration")
)
