package authpipeline_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/authpipeline"
	"storj.io/mantafront/pkg/chain"
	"storj.io/mantafront/pkg/identityclient"
	"storj.io/mantafront/pkg/pb"
	"storj.io/mantafront/pkg/tokens"
)

type fakeIdentityRPC struct {
	byAccount map[string]*pb.ResolveIdentityResponse
	byAccountID map[string]*pb.ResolveIdentityResponse
}

func (f *fakeIdentityRPC) ResolveIdentity(ctx context.Context, in *pb.ResolveIdentityRequest, opts ...grpc.CallOption) (*pb.ResolveIdentityResponse, error) {
	if in.Account != "" {
		if resp, ok := f.byAccount[in.Account]; ok {
			return resp, nil
		}
		return &pb.ResolveIdentityResponse{}, nil
	}
	if in.AccountId != "" {
		if resp, ok := f.byAccountID[in.AccountId]; ok {
			return resp, nil
		}
		return &pb.ResolveIdentityResponse{}, nil
	}
	return &pb.ResolveIdentityResponse{}, nil
}

func (f *fakeIdentityRPC) EvaluateRoles(ctx context.Context, in *pb.EvaluateRolesRequest, opts ...grpc.CallOption) (*pb.EvaluateRolesResponse, error) {
	return &pb.EvaluateRolesResponse{Allowed: true}, nil
}

func testTokenConfig() tokens.Config {
	return tokens.Config{
		Salt:   []byte("fixed-salt"),
		Key:    []byte("fixed-key-material"),
		IV:     []byte("0123456789abcdef"),
		MaxAge: time.Hour,
	}
}

func newTestCtx(t *testing.T, method, path string, headers http.Header, query url.Values) *chain.Context {
	t.Helper()
	return chain.NewContext(context.Background(), method, path, path, headers, query, "req-1", zaptest.NewLogger(t))
}

func TestPipelineTokenSchemeLoadsCallerAndRoles(t *testing.T) {
	rpc := &fakeIdentityRPC{byAccountID: map[string]*pb.ResolveIdentityResponse{
		"acct-1": {Account: &pb.AccountRecord{Uuid: "acct-1", Login: "poseidon", ApprovedForProvisioning: true}},
	}, byAccount: map[string]*pb.ResolveIdentityResponse{
		"poseidon": {Account: &pb.AccountRecord{Uuid: "acct-1", Login: "poseidon", ApprovedForProvisioning: true}},
	}}
	identity := identityclient.New(zaptest.NewLogger(t), rpc)
	cfg := testTokenConfig()

	payload := tokens.Payload{
		T: time.Now().UnixNano() / int64(time.Millisecond),
		V: 2,
		P: tokens.Principal{Account: tokens.AccountRef{UUID: "acct-1"}},
		C: map[string]interface{}{"activeRoles": []interface{}{"role-1"}},
	}
	sealed, err := tokens.Seal(payload, cfg)
	require.NoError(t, err)

	p := authpipeline.New(identity, cfg, cfg, func() time.Time { return time.Now() })

	headers := http.Header{}
	headers.Set("Authorization", "Token "+sealed)
	ctx := newTestCtx(t, http.MethodGet, "/poseidon/stor", headers, url.Values{})

	require.NoError(t, p.Run(ctx))
	require.Equal(t, "acct-1", ctx.AuthContext.Principal.Account.UUID)
	require.Equal(t, []string{"role-1"}, ctx.AuthContext.Conditions["activeRoles"])
}

func pemEncode(t *testing.T, pub interface{}) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestPipelineSignatureSchemeVerifiesAgainstAccountKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubPEM := pemEncode(t, &key.PublicKey)

	rpc := &fakeIdentityRPC{byAccount: map[string]*pb.ResolveIdentityResponse{
		"poseidon": {Account: &pb.AccountRecord{
			Uuid: "acct-1", Login: "poseidon", ApprovedForProvisioning: true,
			Keys: []*pb.KeyEntry{{Fingerprint: "fp1", PublicKey: pubPEM}},
		}},
	}}
	identity := identityclient.New(zaptest.NewLogger(t), rpc)
	cfg := testTokenConfig()
	p := authpipeline.New(identity, cfg, cfg, nil)

	headers := http.Header{}
	headers.Set("Date", "Wed, 30 Jul 2026 00:00:00 GMT")
	signingString := "date: " + headers.Get("Date")
	digest := sha256.Sum256([]byte(signingString))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	sigB64 := base64.StdEncoding.EncodeToString(sig)

	headers.Set("Authorization", `Signature keyId="/poseidon/keys/fp1",algorithm="rsa-sha256",headers="date",signature="`+sigB64+`"`)
	ctx := newTestCtx(t, http.MethodGet, "/poseidon/stor", headers, url.Values{})

	require.NoError(t, p.Run(ctx))
	require.Equal(t, "acct-1", ctx.AuthContext.Principal.Account.UUID)
}

func TestPipelineSignatureSchemeRejectsBadSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubPEM := pemEncode(t, &key.PublicKey)

	rpc := &fakeIdentityRPC{byAccount: map[string]*pb.ResolveIdentityResponse{
		"poseidon": {Account: &pb.AccountRecord{
			Uuid: "acct-1", Login: "poseidon", ApprovedForProvisioning: true,
			Keys: []*pb.KeyEntry{{Fingerprint: "fp1", PublicKey: pubPEM}},
		}},
	}}
	identity := identityclient.New(zaptest.NewLogger(t), rpc)
	cfg := testTokenConfig()
	p := authpipeline.New(identity, cfg, cfg, nil)

	headers := http.Header{}
	headers.Set("Date", "Wed, 30 Jul 2026 00:00:00 GMT")
	headers.Set("Authorization", `Signature keyId="/poseidon/keys/fp1",algorithm="rsa-sha256",headers="date",signature="`+base64.StdEncoding.EncodeToString([]byte("garbage-signature-bytes"))+`"`)
	ctx := newTestCtx(t, http.MethodGet, "/poseidon/stor", headers, url.Values{})

	err = p.Run(ctx)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeInvalidSignature, apiErr.Code)
}

func TestPipelineAnonymousOnPublicPathGetsSyntheticCaller(t *testing.T) {
	rpc := &fakeIdentityRPC{byAccount: map[string]*pb.ResolveIdentityResponse{
		"poseidon": {Account: &pb.AccountRecord{Uuid: "acct-1", Login: "poseidon", ApprovedForProvisioning: true}},
	}}
	identity := identityclient.New(zaptest.NewLogger(t), rpc)
	cfg := testTokenConfig()
	p := authpipeline.New(identity, cfg, cfg, nil)

	ctx := newTestCtx(t, http.MethodGet, "/poseidon/public/obj", http.Header{}, url.Values{})
	require.NoError(t, p.Run(ctx))
	require.Equal(t, "acct-1", ctx.AuthContext.Principal.Account.UUID)
}

func TestPipelineAnonymousNonPublicPathFailsAtOwnerLoad(t *testing.T) {
	rpc := &fakeIdentityRPC{byAccount: map[string]*pb.ResolveIdentityResponse{
		"poseidon": {Account: &pb.AccountRecord{Uuid: "acct-1", Login: "poseidon", ApprovedForProvisioning: true}},
	}}
	identity := identityclient.New(zaptest.NewLogger(t), rpc)
	cfg := testTokenConfig()
	p := authpipeline.New(identity, cfg, cfg, nil)

	ctx := newTestCtx(t, http.MethodGet, "/poseidon/stor", http.Header{}, url.Values{})
	err := p.Run(ctx)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeAuthorizationError, apiErr.Code)
}

func TestPipelineRejectsUnknownAuthScheme(t *testing.T) {
	identity := identityclient.New(zaptest.NewLogger(t), &fakeIdentityRPC{})
	cfg := testTokenConfig()
	p := authpipeline.New(identity, cfg, cfg, nil)

	headers := http.Header{}
	headers.Set("Authorization", "Basic dXNlcjpwYXNz")
	ctx := newTestCtx(t, http.MethodGet, "/poseidon/stor", headers, url.Values{})

	err := p.Run(ctx)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeAuthorizationSchemeNotAllow, apiErr.Code)
}
