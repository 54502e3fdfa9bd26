// Package authz evaluates a built authContext against the role-tag and
// policy rules the identity service owns (spec.md §4.4). The rule
// language itself is not re-implemented here; this package only shapes
// the request, dispatches it, and maps the verdict back onto the wire
// taxonomy.
package authz

import (
	"context"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/pb"
)

var mon = monkit.Package()

// Evaluator calls the identity service's rule evaluator.
type Evaluator struct {
	log *zap.Logger
	rpc pb.IdentityServiceClient
}

// New builds an Evaluator bound to rpc.
func New(log *zap.Logger, rpc pb.IdentityServiceClient) *Evaluator {
	return &Evaluator{log: log, rpc: rpc}
}

// Evaluate checks authCtx and returns nil on success, or one of
// AccountBlocked/NoMatchingRoleTag/InvalidRole/CrossAccount/
// RulesEvaluationFailed/AuthorizationError/AuthorizationFailed
// (spec.md §4.4). Any evaluator
// failure that isn't one of those becomes InternalError.
func (e *Evaluator) Evaluate(ctx context.Context, authCtx *model.AuthContext) (err error) {
	defer mon.Task()(&ctx)(&err)

	if authCtx.Principal.Account != nil && authCtx.Principal.Account.IsOperator {
		return nil
	}

	if authCtx.Principal.Account == nil {
		return apierrors.New(apierrors.CodeAuthorizationFailed, "no principal bound to request")
	}
	if authCtx.Resource.Owner == nil {
		return apierrors.New(apierrors.CodeAuthorizationFailed, "no owner bound to resource")
	}
	if authCtx.Resource.Owner.UUID != authCtx.Principal.Account.UUID {
		// A resource owned by a different account is only reachable via
		// an explicit role grant, never implicit same-account access.
		if !hasAnyRole(authCtx.Resource.Roles, activeRoles(authCtx)) {
			return apierrors.New(apierrors.CodeCrossAccount, "caller and resource owner differ and no granted role bridges them")
		}
	}

	req := &pb.EvaluateRolesRequest{
		AccountUuid:   authCtx.Principal.Account.UUID,
		OwnerUuid:     authCtx.Resource.Owner.UUID,
		Action:        authCtx.Action,
		ActiveRoles:   activeRoles(authCtx),
		ResourceRoles: authCtx.Resource.Roles,
		Conditions:    stringConditions(authCtx.Conditions),
	}
	if authCtx.Principal.User != nil {
		req.UserUuid = authCtx.Principal.User.UUID
	}

	resp, err := e.rpc.EvaluateRoles(ctx, req)
	if err != nil {
		return apierrors.Classed(apierrors.IdentityClass, apierrors.CodeRulesEvaluationFailed, err)
	}

	if resp.Allowed {
		return nil
	}
	return denyReasonToError(resp.DenyReason)
}

func activeRoles(authCtx *model.AuthContext) []string {
	raw, ok := authCtx.Conditions[model.ConditionActiveRoles]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasAnyRole(resourceRoles, activeRoles []string) bool {
	if len(resourceRoles) == 0 {
		return false
	}
	active := make(map[string]struct{}, len(activeRoles))
	for _, r := range activeRoles {
		active[r] = struct{}{}
	}
	for _, r := range resourceRoles {
		if _, ok := active[r]; ok {
			return true
		}
	}
	return false
}

func stringConditions(conditions map[string]interface{}) map[string]string {
	out := make(map[string]string, len(conditions))
	for k, v := range conditions {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func denyReasonToError(reason string) error {
	switch reason {
	case "AccountBlocked":
		return apierrors.New(apierrors.CodeAccountBlocked, "account is blocked")
	case "NoMatchingRoleTag":
		return apierrors.New(apierrors.CodeNoMatchingRoleTag, "no active role matches the resource's role tags")
	case "InvalidRole":
		return apierrors.New(apierrors.CodeInvalidRole, "role does not resolve within the caller's granted set")
	case "CrossAccount":
		return apierrors.New(apierrors.CodeCrossAccount, "cross-account access denied")
	case "":
		return apierrors.New(apierrors.CodeAuthorizationFailed, "authorization denied")
	default:
		return apierrors.New(apierrors.CodeAuthorizationError, reason)
	}
}
