// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package tokens_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/tokens"
)

func testConfig() tokens.Config {
	return tokens.Config{
		Salt:   []byte("a-fixed-salt-value"),
		Key:    []byte("super-secret-key-material"),
		IV:     []byte("0123456789abcdef"),
		MaxAge: time.Hour,
	}
}

func TestSealUnsealRoundTrip(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	payload := tokens.Payload{
		T: now.UnixNano() / int64(time.Millisecond),
		V: 2,
		P: tokens.Principal{
			Account: tokens.AccountRef{UUID: "acct-1"},
			Roles:   []string{"role-1"},
		},
		C: map[string]interface{}{"activeRoles": []interface{}{"role-1"}, "fromjob": false},
	}

	sealed, err := tokens.Seal(payload, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, sealed)

	got, err := tokens.Unseal(sealed, cfg, now)
	require.NoError(t, err)
	require.Equal(t, payload.P.Account.UUID, got.P.Account.UUID)
	require.Equal(t, payload.V, got.V)
}

func TestSealRejectsForbiddenConditions(t *testing.T) {
	cfg := testConfig()
	for _, key := range []string{"date", "sourceip", "user-agent"} {
		payload := tokens.Payload{T: 1, V: 2, C: map[string]interface{}{key: "x"}}
		_, err := tokens.Seal(payload, cfg)
		require.Error(t, err)
		apiErr := apierrors.As(err)
		require.NotNil(t, apiErr)
		require.Equal(t, apierrors.CodeInternalError, apiErr.Code)
	}
}

func TestUnsealRejectsTamperedCiphertext(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	payload := tokens.Payload{T: now.UnixNano() / int64(time.Millisecond), V: 2}
	sealed, err := tokens.Seal(payload, cfg)
	require.NoError(t, err)

	tampered := []byte(sealed)
	tampered[0] ^= 0xFF
	tampered[len(tampered)-1] ^= 0xFF

	_, err = tokens.Unseal(string(tampered), cfg, now)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeInvalidAuthenticationToken, apiErr.Code)
}

func TestUnsealRejectsTruncated(t *testing.T) {
	cfg := testConfig()
	_, err := tokens.Unseal("not-valid-base64-!!!", cfg, time.Now())
	require.Error(t, err)
}

func TestUnsealRejectsStale(t *testing.T) {
	cfg := testConfig()
	old := time.Now().Add(-2 * time.Hour)
	payload := tokens.Payload{T: old.UnixNano() / int64(time.Millisecond), V: 2}
	sealed, err := tokens.Seal(payload, cfg)
	require.NoError(t, err)

	_, err = tokens.Unseal(sealed, cfg, time.Now())
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.Equal(t, apierrors.CodeInvalidAuthenticationToken, apiErr.Code)
}

func TestUnsealRejectsUnknownVersion(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	raw, err := json.Marshal(map[string]interface{}{
		"t": now.UnixNano() / int64(time.Millisecond),
		"v": 99,
	})
	require.NoError(t, err)

	sealed := sealRaw(t, raw, cfg)
	_, err = tokens.Unseal(sealed, cfg, now)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.Equal(t, apierrors.CodeInvalidAuthenticationToken, apiErr.Code)
}

func TestUnsealAcceptsLegacyV1AndMarksOperator(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	legacy := map[string]interface{}{
		"u": "legacy-acct-uuid",
		"l": "legacylogin",
		"g": []string{"operators"},
		"t": now.UnixNano() / int64(time.Millisecond),
	}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)

	sealed := sealRaw(t, raw, cfg)
	got, err := tokens.Unseal(sealed, cfg, now)
	require.NoError(t, err)
	require.Equal(t, "legacy-acct-uuid", got.P.Account.UUID)
	require.Equal(t, 1, got.V)
	require.Equal(t, true, got.C["legacyOperator"])
}

// sealRaw seals arbitrary JSON bytes the same way Seal would, without
// going through the Payload struct — used to construct the legacy v1 and
// unknown-version fixtures.
func sealRaw(t *testing.T, raw []byte, cfg tokens.Config) string {
	t.Helper()
	sealed, err := tokens.SealRawForTest(raw, cfg)
	require.NoError(t, err)
	return sealed
}
