package httpsign

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"storj.io/mantafront/pkg/apierrors"
)

// Presigned is a validated presigned-URL signature request (spec.md §4.2).
type Presigned struct {
	Algorithm Algorithm
	Expires   int64 // unix seconds
	KeyID     string
	Signature []byte
}

// IsPresignedRequest reports whether req looks like a presigned request:
// no Authorization header and at least one of expires/signature/keyId/
// algorithm present in the query (spec.md §4.3 step 2).
func IsPresignedRequest(hasAuthorizationHeader bool, query url.Values) bool {
	if hasAuthorizationHeader {
		return false
	}
	for _, key := range []string{"expires", "signature", "keyId", "algorithm"} {
		if query.Get(key) != "" {
			return true
		}
	}
	return false
}

// ParsePresigned validates the four required query parameters and decodes
// the signature. Any missing parameter, non-integer expires, unsupported
// algorithm, or expired request is a single distinct error class
// (InvalidQueryStringAuthentication), per spec.md §4.2.
func ParsePresigned(query url.Values, nowSeconds int64, decodeSignature func(string) ([]byte, error)) (Presigned, error) {
	algRaw := query.Get("algorithm")
	expiresRaw := query.Get("expires")
	keyID := query.Get("keyId")
	sigRaw := query.Get("signature")

	if algRaw == "" || expiresRaw == "" || keyID == "" || sigRaw == "" {
		return Presigned{}, invalidQueryStringAuth()
	}

	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return Presigned{}, invalidQueryStringAuth()
	}

	alg, err := ParseAlgorithm(algRaw)
	if err != nil {
		return Presigned{}, invalidQueryStringAuth()
	}

	if expires < nowSeconds {
		return Presigned{}, invalidQueryStringAuth()
	}

	sig, err := decodeSignature(sigRaw)
	if err != nil {
		return Presigned{}, invalidQueryStringAuth()
	}

	return Presigned{Algorithm: alg, Expires: expires, KeyID: keyID, Signature: sig}, nil
}

func invalidQueryStringAuth() error {
	return apierrors.New(apierrors.CodeInvalidQueryStringAuthn, "invalid presigned request")
}

// CanonicalSigningString builds the signing string for a presigned
// request (spec.md §4.2):
//
//	methods_joined_by_comma_sorted + "\n" +
//	Host + "\n" +
//	path_before_sanitization + "\n" +
//	rfc3986-sorted-query-excluding-signature
func CanonicalSigningString(methods []string, host, pathPreSanitize string, query url.Values) string {
	sortedMethods := append([]string(nil), methods...)
	sort.Strings(sortedMethods)

	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range query[k] {
			parts = append(parts, rfc3986Encode(k)+"="+rfc3986Encode(v))
		}
	}

	return strings.Join(sortedMethods, ",") + "\n" +
		host + "\n" +
		pathPreSanitize + "\n" +
		strings.Join(parts, "&")
}

// rfc3986Encode percent-encodes s per RFC3986. net/url.QueryEscape already
// escapes !'()* (they fall outside its unreserved set) using uppercase
// hex, which is exactly the "!'() reserved, * as %2A" rule spec.md §4.2
// calls for; the only adjustment needed is space, which QueryEscape
// renders as "+" rather than "%20".
func rfc3986Encode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
