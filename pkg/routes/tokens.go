package routes

import (
	"net/http"
	"time"

	"storj.io/mantafront/pkg/chain"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/tokens"
)

// mintToken handles POST /:account/tokens (spec.md §4.1): it seals the
// caller's own identity and active roles, never a different principal's.
func (s *Server) mintToken(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	account := ctx.AuthContext.Principal.Account

	payload := tokens.Payload{
		T: time.Now().UnixNano() / int64(time.Millisecond),
		P: tokens.Principal{
			Account: tokens.AccountRef{UUID: account.UUID},
			Roles:   activeRoleUUIDs(ctx),
		},
		C: tokenConditions(ctx),
		V: 2,
	}
	if user := ctx.AuthContext.Principal.User; user != nil {
		payload.P.User = &tokens.AccountRef{UUID: user.UUID}
	}

	opaque, err := tokens.Seal(payload, s.Tokens)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": opaque})
}

// tokenConditions carries forward only the identity-relevant conditions
// a sealed token may legally hold (spec.md §3's "conditions_subset").
func tokenConditions(ctx *chain.Context) map[string]interface{} {
	out := map[string]interface{}{}
	if roles, ok := ctx.AuthContext.Conditions[model.ConditionActiveRoles]; ok {
		out[model.ConditionActiveRoles] = roles
	}
	if fromJob, ok := ctx.AuthContext.Conditions[model.ConditionFromJob]; ok {
		out[model.ConditionFromJob] = fromJob
	}
	return out
}
