// Package archive moves directory trees and single files through tar streams.
//
// Environments exchange files with the host exclusively as tar streams: the
// source tree goes in, installed tools go in, and the build output comes out.
// The writers in this package produce those streams from host paths, with an
// optional normalized mode that strips timestamps and ownership so that equal
// trees produce byte-identical archives. [Extract] is the inverse and refuses
// entries that would land outside the destination.
//
// [Pick] reads downloaded toolchain archives (tar, gzip- or xz-compressed
// tar, zip, or a bare executable) and returns the one member selected by the
// caller's predicate.
package archive
