package httpsign

import (
	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/model"
)

// HeaderSignature is a parsed `Authorization: Signature ...` value.
type HeaderSignature struct {
	KeyID     KeyID
	Algorithm Algorithm
	Signature []byte
}

// VerifyHeader looks up the caller's keyset by keyId.Fingerprint and
// verifies signature against signingString. Missing key -> KeyDoesNotExist;
// verification failure -> InvalidSignature; unparseable PEM -> InternalError
// (spec.md §4.2).
func VerifyHeader(caller *model.Caller, sig HeaderSignature, signingString string) error {
	keyset := caller.Keyset()
	publicKeyPEM, ok := keyset[sig.KeyID.Fingerprint]
	if !ok {
		return keyDoesNotExist()
	}
	return VerifySignature(sig.Algorithm, publicKeyPEM, signingString, sig.Signature)
}

// VerifyPresigned is VerifyHeader specialized for an already-parsed
// Presigned value.
func VerifyPresigned(caller *model.Caller, keyID KeyID, presigned Presigned, signingString string) error {
	keyset := caller.Keyset()
	publicKeyPEM, ok := keyset[keyID.Fingerprint]
	if !ok {
		return keyDoesNotExist()
	}
	return VerifySignature(presigned.Algorithm, publicKeyPEM, signingString, presigned.Signature)
}

func keyDoesNotExist() error {
	return apierrors.New(apierrors.CodeKeyDoesNotExist, "no matching public key")
}

// ParseHeaderAuthorization builds a HeaderSignature from the already
// split keyId, algorithm and signature values of an `Authorization:
// Signature keyId="...",algorithm="...",signature="..."` header.
// decodeSignature turns sigRaw into bytes; if it fails, the result is
// InvalidHttpAuthenticationToken.
func ParseHeaderAuthorization(keyIDRaw, algorithmRaw string, decodeSignature func(string) ([]byte, error), sigRaw string) (HeaderSignature, error) {
	keyID, err := ParseKeyID(keyIDRaw)
	if err != nil {
		return HeaderSignature{}, err
	}
	alg, err := ParseAlgorithm(algorithmRaw)
	if err != nil {
		return HeaderSignature{}, err
	}
	sig, err := decodeSignature(sigRaw)
	if err != nil {
		return HeaderSignature{}, invalidHTTPAuthToken()
	}
	return HeaderSignature{KeyID: keyID, Algorithm: alg, Signature: sig}, nil
}

func invalidHTTPAuthToken() error {
	return apierrors.New(apierrors.CodeInvalidHttpAuthToken, "malformed Authorization: Signature header")
}
