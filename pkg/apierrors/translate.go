package apierrors

import "strings"

// metadataErrKind is the small set of error kinds the metadata client
// wrapper recognizes from the metadata service (spec.md §7, §5). Anything
// else is an opaque InternalError.
type metadataErrKind string

const (
	MetadataObjectNotFound      metadataErrKind = "ObjectNotFound"
	MetadataEtagConflict        metadataErrKind = "EtagConflict"
	MetadataUniqueAttribute     metadataErrKind = "UniqueAttribute"
	MetadataPreconditionFailed  metadataErrKind = "PreconditionFailed"
	MetadataRangeNotSatisfiable metadataErrKind = "RangeNotSatisfiable"
	MetadataNoDatabasePeers     metadataErrKind = "NoDatabasePeersError"

	// MetadataUnrecognized is never produced by the metadata client itself;
	// it exists so callers (and tests) can exercise the default branch of
	// TranslateMetadataError explicitly.
	MetadataUnrecognized metadataErrKind = "Unrecognized"
)

// ParseMetadataErrKind maps the leading token of a metadata-service error
// message (the convention the metadata client wrapper parses status
// messages against) to one of the recognized kinds, or MetadataUnrecognized.
func ParseMetadataErrKind(s string) metadataErrKind {
	switch metadataErrKind(s) {
	case MetadataObjectNotFound, MetadataEtagConflict, MetadataUniqueAttribute,
		MetadataPreconditionFailed, MetadataRangeNotSatisfiable, MetadataNoDatabasePeers:
		return metadataErrKind(s)
	default:
		return MetadataUnrecognized
	}
}

// TranslateMetadataError maps a metadata-service failure kind (plus, for
// NoDatabasePeersError, the name of its wrapped cause) to the taxonomy in
// spec.md §7. PreconditionFailed becomes ContentMD5Mismatch, not a
// precondition error of its own; RangeNotSatisfiable keeps its code;
// everything unrecognized becomes InternalError.
func TranslateMetadataError(kind metadataErrKind, cause error, causeName string) *Error {
	switch kind {
	case MetadataObjectNotFound:
		return Classed(NamespaceClass, CodeResourceNotFound, cause)
	case MetadataEtagConflict, MetadataUniqueAttribute:
		return Classed(NamespaceClass, CodeConcurrentRequest, cause)
	case MetadataPreconditionFailed:
		return Classed(RequestClass, CodeContentMD5Mismatch, cause)
	case MetadataRangeNotSatisfiable:
		return Classed(RequestClass, CodeRangeNotSatisfiable, cause)
	case MetadataNoDatabasePeers:
		if strings.Contains(causeName, "OverloadedError") {
			return Classed(TransportClass, CodeServiceUnavailable, cause)
		}
		return Classed(ServerClass, CodeInternalError, cause)
	default:
		return Internal(cause)
	}
}
