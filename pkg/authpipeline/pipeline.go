// Package authpipeline orchestrates the ordered auth-pipeline stages
// (spec.md §4.3) on top of pkg/httpsign, pkg/tokens, and
// pkg/identityclient, populating a chain.Context's Auth and AuthContext
// fields ready for pkg/authz and the route handlers.
package authpipeline

import (
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/chain"
	"storj.io/mantafront/pkg/httpsign"
	"storj.io/mantafront/pkg/identityclient"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/tokens"
)

// publicAccessPattern matches the anonymous-access path shape
// "/<account>/public/..." (spec.md §4.3 step 8).
var publicAccessPattern = regexp.MustCompile(`^/([^/]+)/public(/.*)?$`)

// Pipeline runs the ordered stages against a chain.Context.
type Pipeline struct {
	Identity      *identityclient.Client
	TokenConfig   tokens.Config
	DelegateConfig tokens.Config
	Now           func() time.Time
}

// New builds a Pipeline. now defaults to time.Now if nil.
func New(identity *identityclient.Client, tokenCfg, delegateCfg tokens.Config, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{Identity: identity, TokenConfig: tokenCfg, DelegateConfig: delegateCfg, Now: now}
}

// Run executes stages 1-12 against ctx.StdContext / ctx fields, mutating
// ctx.Auth and ctx.AuthContext in place. It returns the first
// short-circuiting error, or nil on success.
func (p *Pipeline) Run(ctx *chain.Context) error {
	ctx.AuthContext.Conditions = map[string]interface{}{}

	authHeader := ctx.Headers.Get("Authorization")
	presigned := httpsign.IsPresignedRequest(authHeader != "", ctx.Query)

	var (
		headerSig    httpsign.HeaderSignature
		presignedSig httpsign.Presigned
		haveHeaderSig, havePresignedSig bool
	)

	switch {
	case presigned:
		sig, err := httpsign.ParsePresigned(ctx.Query, p.Now().Unix(), decodeBase64Signature)
		if err != nil {
			return err
		}
		keyID, err := httpsign.ParseKeyID(sig.KeyID)
		if err != nil {
			return err
		}
		presignedSig = sig
		havePresignedSig = true
		ctx.Auth.CallerKey = sig.KeyID
		ctx.Auth.Account = keyID.Account
		ctx.Auth.User = keyID.User

	case authHeader != "":
		scheme, rest := splitScheme(authHeader)
		switch strings.ToLower(scheme) {
		case "token":
			payload, err := tokens.Unseal(rest, p.TokenConfig, p.Now())
			if err != nil {
				return err
			}
			ctx.Auth.Token = rest
			ctx.Auth.AccountID = payload.P.Account.UUID
			if payload.P.User != nil {
				ctx.Auth.UserID = payload.P.User.UUID
			}
			for k, v := range payload.C {
				ctx.AuthContext.Conditions[k] = v
			}
		case "signature":
			params := parseAuthParams(rest)
			alg, err := httpsign.ParseAlgorithm(params["algorithm"])
			if err != nil {
				return err
			}
			keyID, err := httpsign.ParseKeyID(params["keyid"])
			if err != nil {
				return err
			}
			sigBytes, err := decodeBase64Signature(params["signature"])
			if err != nil {
				return apierrors.New(apierrors.CodeInvalidSignature, "signature is not valid base64")
			}
			headerSig = httpsign.HeaderSignature{KeyID: keyID, Algorithm: alg, Signature: sigBytes}
			haveHeaderSig = true
			ctx.Auth.CallerKey = params["keyid"]
			ctx.Auth.Algorithm = params["algorithm"]
			ctx.Auth.Signature = sigBytes
			ctx.Auth.Account = keyID.Account
			ctx.Auth.User = keyID.User
		default:
			return authSchemeError()
		}

	default:
		ctx.Auth.Anonymous = true
	}

	// Stage 8: load caller.
	caller, err := p.loadCaller(ctx)
	if err != nil {
		return err
	}

	// Stage 9: verify signature.
	if haveHeaderSig {
		signingString := headerSigningString(ctx, authParamsFor(authHeader))
		if err := httpsign.VerifyHeader(caller, headerSig, signingString); err != nil {
			return err
		}
	}
	if havePresignedSig {
		signingString := httpsign.CanonicalSigningString([]string{ctx.Method}, ctx.Headers.Get("Host"), ctx.PathPreSanitize, ctx.Query)
		keyID, _ := httpsign.ParseKeyID(ctx.Auth.CallerKey)
		if err := httpsign.VerifyPresigned(caller, keyID, presignedSig, signingString); err != nil {
			return err
		}
	}

	// Stage 10: delegated token header.
	if delegated := ctx.Headers.Get("x-auth-token"); delegated != "" {
		payload, err := tokens.Unseal(delegated, p.DelegateConfig, p.Now())
		if err != nil {
			return err
		}
		devKeyID, _ := payload.C["devkeyId"].(string)
		if devKeyID != ctx.Auth.CallerKey {
			return apierrors.New(apierrors.CodeInvalidHttpAuthToken, "delegated token devkeyId does not match signature keyId")
		}
		ctx.Auth.Account = payload.P.Account.UUID
		caller, err = p.Identity.Lookup(ctx.StdContext, "", "", payload.P.Account.UUID, "")
		if err != nil {
			return err
		}
	}

	ctx.AuthContext.Principal = *caller

	// Stage 11: load owner.
	owner, err := p.loadOwner(ctx, caller)
	if err != nil {
		return err
	}
	ctx.AuthContext.Resource.Owner = owner

	// Stage 12: active roles.
	roles, err := p.activeRoles(ctx, caller)
	if err != nil {
		return err
	}
	ctx.AuthContext.Conditions[model.ConditionActiveRoles] = roles

	p.gatherContext(ctx)
	return nil
}

func (p *Pipeline) loadCaller(ctx *chain.Context) (*model.Caller, error) {
	switch {
	case ctx.Auth.User != "" && ctx.Auth.Account != "":
		return p.Identity.Lookup(ctx.StdContext, ctx.Auth.Account, ctx.Auth.User, "", "")
	case ctx.Auth.UserID != "":
		return p.Identity.Lookup(ctx.StdContext, "", "", "", ctx.Auth.UserID)
	case ctx.Auth.Account != "":
		return p.Identity.Lookup(ctx.StdContext, ctx.Auth.Account, "", "", "")
	case ctx.Auth.AccountID != "":
		return p.Identity.Lookup(ctx.StdContext, "", "", ctx.Auth.AccountID, "")
	default:
		if m := publicAccessPattern.FindStringSubmatch(ctx.Path()); m != nil {
			return p.Identity.Lookup(ctx.StdContext, m[1], "", "", "")
		}
		ctx.Auth.Anonymous = true
		return &model.Caller{Anonymous: true}, nil
	}
}

func (p *Pipeline) loadOwner(ctx *chain.Context, caller *model.Caller) (*model.Account, error) {
	trimmed := strings.TrimPrefix(ctx.Path(), "/")
	segments := strings.SplitN(trimmed, "/", 2)
	ownerLogin := segments[0]

	var owner *model.Account
	if caller.Account != nil && caller.Account.Login == ownerLogin {
		owner = caller.Account
	} else {
		resolved, err := p.Identity.Lookup(ctx.StdContext, ownerLogin, "", "", "")
		if err != nil {
			return nil, err
		}
		owner = resolved.Account
	}

	if caller.Anonymous {
		return nil, apierrors.New(apierrors.CodeAuthorizationError, "no anonymous user configured for owner")
	}
	if caller.Account != nil && caller.Account.IsOperator {
		return owner, nil
	}
	if !owner.ApprovedForProvisioning {
		return nil, apierrors.New(apierrors.CodeAuthorizationFailed, "owner account is not approved")
	}
	return owner, nil
}

func (p *Pipeline) activeRoles(ctx *chain.Context, caller *model.Caller) ([]string, error) {
	if ctx.Auth.Token != "" {
		if raw, ok := ctx.AuthContext.Conditions[model.ConditionActiveRoles]; ok {
			return toStringSlice(raw), nil
		}
		return nil, nil
	}

	requested := ctx.Query.Get("role")
	if requested == "" {
		requested = ctx.Headers.Get("role")
	}

	if requested == "" {
		if caller.User != nil {
			return toStringSlice2(caller.User.DefaultRoles), nil
		}
		return nil, nil
	}

	if requested == "*" {
		if caller.User == nil {
			return nil, nil
		}
		return toStringSlice2(caller.User.Roles), nil
	}

	granted := map[string]struct{}{}
	if caller.User != nil {
		granted = caller.User.Roles
	}

	names := strings.Split(requested, ",")
	uuids := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		uuid, ok := resolveRoleName(caller.Roles, granted, name)
		if !ok {
			return nil, apierrors.New(apierrors.CodeInvalidRole, "role "+name+" does not belong to the caller's granted set")
		}
		uuids = append(uuids, uuid)
	}
	return uuids, nil
}

func resolveRoleName(roles map[string]*model.Role, granted map[string]struct{}, name string) (string, bool) {
	for uuid, role := range roles {
		if role.Name != name {
			continue
		}
		if _, ok := granted[uuid]; !ok {
			continue
		}
		return uuid, true
	}
	return "", false
}

func (p *Pipeline) gatherContext(ctx *chain.Context) {
	now := p.Now()
	set := func(key string, value interface{}) {
		if _, tokenSupplied := ctx.AuthContext.Conditions[key]; tokenSupplied && ctx.Auth.Token != "" {
			return
		}
		ctx.AuthContext.Conditions[key] = value
	}
	set(model.ConditionMethod, ctx.Method)
	set(model.ConditionDate, now.Format("2006-01-02"))
	set(model.ConditionDay, now.Weekday().String())
	set(model.ConditionTime, now.Format("15:04:05"))
	set(model.ConditionSourceIP, firstForwardedFor(ctx.Headers.Get("x-forwarded-for")))
	set(model.ConditionUserAgent, ctx.Headers.Get("User-Agent"))
	set(model.ConditionFromJob, false)
}

func firstForwardedFor(header string) string {
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.Split(header, ",")[0])
}

func toStringSlice(raw interface{}) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toStringSlice2(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func authSchemeError() error {
	return apierrors.New(apierrors.CodeAuthorizationSchemeNotAllow, "Authorization scheme must be Signature or Token")
}

func decodeBase64Signature(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func splitScheme(header string) (scheme, rest string) {
	idx := strings.IndexByte(header, ' ')
	if idx < 0 {
		return header, ""
	}
	return header[:idx], strings.TrimSpace(header[idx+1:])
}

// authParamsFor re-derives the Authorization: Signature param map for
// the header-signing-string builder; only called when a header
// signature was parsed.
func authParamsFor(authHeader string) map[string]string {
	_, rest := splitScheme(authHeader)
	return parseAuthParams(rest)
}

// parseAuthParams parses `key="value",key2="value2"` into a lowercased
// key map.
func parseAuthParams(rest string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		val := strings.Trim(strings.TrimSpace(part[eq+1:]), `"`)
		out[key] = val
	}
	return out
}

// headerSigningString reconstructs the signing string for an
// Authorization-header signature from the `headers` param (default
// "date"), supporting the "(request-target)" pseudo-header.
func headerSigningString(ctx *chain.Context, params map[string]string) string {
	names := strings.Fields(params["headers"])
	if len(names) == 0 {
		names = []string{"date"}
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(name)
		if name == "(request-target)" {
			lines = append(lines, "(request-target): "+strings.ToLower(ctx.Method)+" "+ctx.PathPreSanitize)
			continue
		}
		lines = append(lines, name+": "+ctx.Headers.Get(name))
	}
	return strings.Join(lines, "\n")
}

