// Package artifact fingerprints, packages and publishes exported build
// outputs.
//
// A [Structure] records the sorted relative paths of an exported directory
// with their entry types; its digest is equal for two outputs exactly when
// their directory structure is equal, which is how repeated runs with the
// same pins are compared. [Pack] turns an output directory into a
// deterministic gzip-compressed tar described by an OCI content
// descriptor, and a [Publisher] uploads that archive to an S3-compatible
// object store under its digest.
package artifact
