// Package identityclient fetches account/user/key/role records from the
// external identity service (spec.md component 2). It is a thin
// translation layer over the gRPC stub in pkg/pb: no caching, because
// identity-relevant data (keys, roles, block status) must reflect the
// latest state on every request.
package identityclient

import (
	"context"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/pb"
)

var mon = monkit.Package()

// Client resolves Callers from the identity service.
type Client struct {
	log *zap.Logger
	rpc pb.IdentityServiceClient
}

// New builds a Client around an already-dialed gRPC stub.
func New(log *zap.Logger, rpc pb.IdentityServiceClient) *Client {
	return &Client{log: log, rpc: rpc}
}

// Lookup resolves a caller using, in priority order, (account,user),
// userId, account, accountId (spec.md §4.3 step 8). Exactly one of the
// fields should normally be populated by the caller of this method;
// Lookup forwards all given fields and lets the identity service apply
// priority.
func (c *Client) Lookup(ctx context.Context, account, user, accountId, userId string) (caller *model.Caller, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := c.rpc.ResolveIdentity(ctx, &pb.ResolveIdentityRequest{
		Account:   account,
		User:      user,
		AccountId: accountId,
		UserId:    userId,
	})
	if err != nil {
		return nil, apierrors.Classed(apierrors.IdentityClass, apierrors.CodeAccountDoesNotExist, err)
	}
	if resp.Account == nil {
		return nil, apierrors.New(apierrors.CodeAccountDoesNotExist, "account does not exist")
	}

	return fromResponse(resp), nil
}

func fromResponse(resp *pb.ResolveIdentityResponse) *model.Caller {
	acct := &model.Account{
		UUID:                    resp.Account.Uuid,
		Login:                   resp.Account.Login,
		ApprovedForProvisioning: resp.Account.ApprovedForProvisioning,
		IsOperator:              resp.Account.IsOperator,
		Groups:                  toSet(resp.Account.Groups),
		Keys:                    toKeyMap(resp.Account.Keys),
	}

	var usr *model.User
	if resp.User != nil {
		usr = &model.User{
			UUID:         resp.User.Uuid,
			AccountUUID:  resp.User.AccountUuid,
			Login:        resp.User.Login,
			Keys:         toKeyMap(resp.User.Keys),
			Roles:        toSet(resp.User.Roles),
			DefaultRoles: toSet(resp.User.DefaultRoles),
		}
	}

	roles := make(map[string]*model.Role, len(resp.Roles))
	for _, r := range resp.Roles {
		roles[r.Uuid] = &model.Role{
			UUID:     r.Uuid,
			Name:     r.Name,
			Policies: toSet(r.Policies),
		}
	}

	return &model.Caller{Account: acct, User: usr, Roles: roles}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func toKeyMap(entries []*pb.KeyEntry) map[string]string {
	keys := make(map[string]string, len(entries))
	for _, e := range entries {
		keys[e.Fingerprint] = e.PublicKey
	}
	return keys
}
