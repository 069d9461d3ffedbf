package environment

import "errors"

var (
	ErrEnvironment     = errors.New("environment error")
	ErrCommandNotFound = errors.New("command not found")
	ErrEmptyCommand    = errors.New("empty command")

	ErrOutsideEnvironment = errors.New("path resolves outside the environment")
)
