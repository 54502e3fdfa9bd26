// Package httpsign validates RFC-style HTTP Signatures and presigned-URL
// signatures (spec.md component 4 / §4.2).
package httpsign

import (
	"strings"

	"storj.io/mantafront/pkg/apierrors"
)

// KeyID is a parsed `keyId` value, either an account key or a subuser key.
type KeyID struct {
	Account     string
	User        string // empty for account keys
	Fingerprint string
}

// ParseKeyID splits raw into {account, user?, fingerprint}. raw must be
// one of:
//
//	/<account>/keys/<fp>
//	/<account>/<user>/keys/<fp>
//
// Malformed input, or an empty account/user/fingerprint, is
// InvalidKeyIdError (spec.md §4.2).
func ParseKeyID(raw string) (KeyID, error) {
	trimmed := strings.Trim(raw, "/")
	parts := strings.Split(trimmed, "/")

	switch len(parts) {
	case 3:
		// account/keys/fp
		if parts[1] != "keys" || parts[0] == "" || parts[2] == "" {
			return KeyID{}, invalidKeyID()
		}
		return KeyID{Account: parts[0], Fingerprint: parts[2]}, nil
	case 4:
		// account/user/keys/fp
		if parts[2] != "keys" || parts[0] == "" || parts[1] == "" || parts[3] == "" {
			return KeyID{}, invalidKeyID()
		}
		return KeyID{Account: parts[0], User: parts[1], Fingerprint: parts[3]}, nil
	default:
		return KeyID{}, invalidKeyID()
	}
}

func invalidKeyID() error {
	return apierrors.New(apierrors.CodeInvalidKeyId, "malformed keyId")
}
