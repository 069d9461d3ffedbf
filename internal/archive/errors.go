package archive

import "errors"

var (
	ErrNoMember      = errors.New("no matching archive member")
	ErrAmbiguous     = errors.New("more than one matching archive member")
	ErrUnsafePath    = errors.New("archive entry escapes destination")
	ErrMemberTooBig  = errors.New("archive member exceeds size limit")
	ErrUnknownFormat = errors.New("unknown archive format")
	ErrNotRegular    = errors.New("not a regular file")
)
