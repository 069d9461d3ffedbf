package recipe

import "errors"

var (
	ErrRead               = errors.New("failed to read pipeline definition")
	ErrDecode             = errors.New("failed to decode pipeline definition")
	ErrInvalid            = errors.New("invalid pipeline definition")
	ErrImageNotPinned     = errors.New("base image is not pinned")
	ErrUndeclaredVariable = errors.New("undeclared variable")
	ErrPinFile            = errors.New("failed to read pin file")
)
