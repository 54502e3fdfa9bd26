package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/authz"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/pb"
)

type fakeRPC struct {
	resp *pb.EvaluateRolesResponse
	err  error
	got  *pb.EvaluateRolesRequest
}

func (f *fakeRPC) ResolveIdentity(ctx context.Context, in *pb.ResolveIdentityRequest, opts ...grpc.CallOption) (*pb.ResolveIdentityResponse, error) {
	return nil, nil
}

func (f *fakeRPC) EvaluateRoles(ctx context.Context, in *pb.EvaluateRolesRequest, opts ...grpc.CallOption) (*pb.EvaluateRolesResponse, error) {
	f.got = in
	return f.resp, f.err
}

func sameAccountCtx() *model.AuthContext {
	acct := &model.Account{UUID: "acct-1"}
	return &model.AuthContext{
		Principal:  model.Caller{Account: acct},
		Action:     "GetObject",
		Resource:   model.ResourceRef{Owner: acct},
		Conditions: map[string]interface{}{},
	}
}

func TestEvaluateOperatorAlwaysAllowed(t *testing.T) {
	rpc := &fakeRPC{}
	e := authz.New(zaptest.NewLogger(t), rpc)

	ctx := sameAccountCtx()
	ctx.Principal.Account.IsOperator = true
	ctx.Resource.Owner = &model.Account{UUID: "someone-else"}

	require.NoError(t, e.Evaluate(context.Background(), ctx))
	require.Nil(t, rpc.got, "operator bypass must not call the rule evaluator")
}

func TestEvaluateDelegatesToRPCAndAllows(t *testing.T) {
	rpc := &fakeRPC{resp: &pb.EvaluateRolesResponse{Allowed: true}}
	e := authz.New(zaptest.NewLogger(t), rpc)

	require.NoError(t, e.Evaluate(context.Background(), sameAccountCtx()))
	require.NotNil(t, rpc.got)
	require.Equal(t, "acct-1", rpc.got.AccountUuid)
}

func TestEvaluateMapsDenyReasons(t *testing.T) {
	cases := map[string]apierrors.Code{
		"AccountBlocked":   apierrors.CodeAccountBlocked,
		"NoMatchingRoleTag": apierrors.CodeNoMatchingRoleTag,
		"InvalidRole":      apierrors.CodeInvalidRole,
		"CrossAccount":     apierrors.CodeCrossAccount,
		"":                 apierrors.CodeAuthorizationFailed,
		"SomethingElse":    apierrors.CodeAuthorizationError,
	}
	for reason, want := range cases {
		rpc := &fakeRPC{resp: &pb.EvaluateRolesResponse{Allowed: false, DenyReason: reason}}
		e := authz.New(zaptest.NewLogger(t), rpc)

		err := e.Evaluate(context.Background(), sameAccountCtx())
		require.Error(t, err, "reason=%q", reason)
		apiErr := apierrors.As(err)
		require.NotNil(t, apiErr, "reason=%q", reason)
		require.Equal(t, want, apiErr.Code, "reason=%q", reason)
	}
}

func TestEvaluateRPCFailureIsRulesEvaluationFailed(t *testing.T) {
	rpc := &fakeRPC{err: context.DeadlineExceeded}
	e := authz.New(zaptest.NewLogger(t), rpc)

	err := e.Evaluate(context.Background(), sameAccountCtx())
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeRulesEvaluationFailed, apiErr.Code)
	require.True(t, apierrors.IdentityClass.Has(apiErr.Cause))
}

func TestEvaluateCrossAccountWithoutRoleBridgeDenied(t *testing.T) {
	rpc := &fakeRPC{resp: &pb.EvaluateRolesResponse{Allowed: true}}
	e := authz.New(zaptest.NewLogger(t), rpc)

	ctx := sameAccountCtx()
	ctx.Resource.Owner = &model.Account{UUID: "other-account"}
	ctx.Resource.Roles = nil

	err := e.Evaluate(context.Background(), ctx)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.Equal(t, apierrors.CodeCrossAccount, apiErr.Code)
	require.Nil(t, rpc.got, "should short-circuit before calling the RPC")
}

func TestEvaluateCrossAccountWithRoleBridgeCallsRPC(t *testing.T) {
	rpc := &fakeRPC{resp: &pb.EvaluateRolesResponse{Allowed: true}}
	e := authz.New(zaptest.NewLogger(t), rpc)

	ctx := sameAccountCtx()
	ctx.Resource.Owner = &model.Account{UUID: "other-account"}
	ctx.Resource.Roles = []string{"role-1"}
	ctx.Conditions[model.ConditionActiveRoles] = []string{"role-1"}

	require.NoError(t, e.Evaluate(context.Background(), ctx))
	require.NotNil(t, rpc.got)
}
