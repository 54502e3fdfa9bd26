package routes

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/chain"
	"storj.io/mantafront/pkg/model"
)

const (
	defaultDurabilityLevel = 2
	minDurabilityLevel     = 1
	maxDurabilityLevel     = 9
)

// keyOnlyLoader binds the target path as the resource key without a
// metadata round trip: a PUT may be creating a brand-new object, which
// by definition carries no prior role tags to gather.
func keyOnlyLoader(ctx *chain.Context, r *http.Request) error {
	ctx.AuthContext.Resource.Key = ctx.Path()
	return nil
}

// existingObjectLoader fetches the target object ahead of authorization
// so the authorizer sees its role tags, and so a GET/HEAD/DELETE against
// a nonexistent key fails with ResourceNotFound before the authorizer
// ever runs (spec.md §4.3).
func existingObjectLoader(ctx *chain.Context, r *http.Request) error {
	obj, err := ctx.Metadata.FindObject(ctx.StdContext, ctx.Path())
	if err != nil {
		return err
	}
	ctx.AuthContext.Resource.Key = obj.Key
	ctx.AuthContext.Resource.Roles = obj.Roles
	return nil
}

// putObject handles PUT /:account/stor/... — either an object write or
// (when the client signals the directory convention) a directory create
// with no body.
func (s *Server) putObject(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	key := ctx.Path()

	if isDirectoryCreate(r) {
		obj := &model.ObjectMetadata{
			Key:       key,
			Type:      "directory",
			OwnerUUID: ctx.AuthContext.Resource.Owner.UUID,
			Headers:   extractMHeaders(r.Header),
		}
		etag, err := ctx.Metadata.PutObject(ctx.StdContext, obj, r.Header.Get("If-Match"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Etag", etag)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	durability, err := parseDurabilityLevel(r.Header.Get("Durability-Level"))
	if err != nil {
		writeError(w, err)
		return
	}

	contentLength := r.ContentLength
	if contentLength < 0 {
		writeError(w, apierrors.New(apierrors.CodeContentLengthRequired, "Content-Length is required"))
		return
	}

	tuples, err := ctx.Picker.Choose(contentLength, durability)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(tuples) == 0 || len(tuples[0]) == 0 {
		writeError(w, apierrors.New(apierrors.CodeNotEnoughSpace, "no storage nodes available"))
		return
	}
	primary := tuples[0]

	bodyEtag, err := s.Sharks.PutAll(ctx.StdContext, primary, key, r.Body, contentLength)
	if err != nil {
		writeError(w, err)
		return
	}

	sharks := make([]model.Shark, len(primary))
	for i, node := range primary {
		sharks[i] = model.Shark{Datacenter: node.Datacenter, MantaStorageID: node.MantaStorageID}
	}

	obj := &model.ObjectMetadata{
		Key:           key,
		Type:          "object",
		OwnerUUID:     ctx.AuthContext.Resource.Owner.UUID,
		ContentMD5:    r.Header.Get("Content-MD5"),
		ContentLength: contentLength,
		ContentType:   r.Header.Get("Content-Type"),
		Headers:       extractMHeaders(r.Header),
		Roles:         activeRoleUUIDs(ctx),
		Sharks:        sharks,
	}

	etag, err := ctx.Metadata.PutObject(ctx.StdContext, obj, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, err)
		return
	}
	if etag == "" {
		etag = bodyEtag
	}
	w.Header().Set("Etag", etag)
	w.WriteHeader(http.StatusNoContent)
}

// getObject handles GET and HEAD /:account/stor/...: a directory listing
// or a streamed object body (GET only — HEAD never reads from sharks).
func (s *Server) getObject(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	key := ctx.Path()
	ctx.AuthContext.Resource.Key = key

	obj, err := ctx.Metadata.FindObject(ctx.StdContext, key)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx.AuthContext.Resource.Roles = obj.Roles

	if obj.IsDirectory() {
		s.listDirectory(ctx, w, r, obj)
		return
	}

	applyCORS(w, r, obj.Headers)
	w.Header().Set("Etag", obj.Etag)
	w.Header().Set("Content-MD5", obj.ContentMD5)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	for k, v := range obj.Headers {
		w.Header().Set(k, v)
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	nodes := sharkNodes(obj.Sharks)
	body, _, err := s.Sharks.Get(ctx.StdContext, nodes, key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *Server) listDirectory(ctx *chain.Context, w http.ResponseWriter, r *http.Request, dir *model.ObjectMetadata) {
	applyCORS(w, r, dir.Headers)
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	children, err := ctx.Metadata.FindChildren(ctx.StdContext, dir.Key)
	if err != nil {
		writeError(w, err)
		return
	}

	type entry struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Etag string `json:"etag,omitempty"`
		Size int64  `json:"size,omitempty"`
	}
	out := make([]entry, len(children))
	for i, child := range children {
		out[i] = entry{
			Name: strings.TrimPrefix(strings.TrimPrefix(child.Key, dir.Key), "/"),
			Type: child.Type,
			Etag: child.Etag,
			Size: child.ContentLength,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// deleteObject handles DELETE /:account/stor/...; paths under an MPU's
// parts directory require the operator override (spec.md §4.6).
func (s *Server) deleteObject(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	key := ctx.Path()
	ctx.AuthContext.Resource.Key = key

	if strings.Contains(key, "/uploads/") {
		if err := mpuDeleteOverride(ctx, r, s.AllowMpuDeletesParam); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := ctx.Metadata.DeleteObject(ctx.StdContext, key, r.Header.Get("If-Match")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isDirectoryCreate(r *http.Request) bool {
	if r.ContentLength > 0 {
		return false
	}
	ct := r.Header.Get("Content-Type")
	return strings.Contains(strings.ToLower(ct), "type=directory")
}

func extractMHeaders(h http.Header) map[string]string {
	out := map[string]string{}
	for k, v := range h {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "m-") && len(v) > 0 {
			out[lower] = v[0]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func activeRoleUUIDs(ctx *chain.Context) []string {
	raw, ok := ctx.AuthContext.Conditions[model.ConditionActiveRoles]
	if !ok {
		return nil
	}
	if s, ok := raw.([]string); ok {
		return s
	}
	return nil
}

// partMetadata builds the metadata record for one uploaded MPU part,
// stored the same way an ordinary object is so partsByEtag's FindChildren
// scan (pkg/mpu) sees it without any part-specific schema.
func partMetadata(key, ownerUUID, contentMD5 string, contentLength int64) *model.ObjectMetadata {
	return &model.ObjectMetadata{
		Key:           key,
		Type:          "object",
		OwnerUUID:     ownerUUID,
		ContentMD5:    contentMD5,
		ContentLength: contentLength,
	}
}

func sharkNodes(sharks []model.Shark) []model.StorageNode {
	out := make([]model.StorageNode, len(sharks))
	for i, s := range sharks {
		out[i] = model.StorageNode{Datacenter: s.Datacenter, MantaStorageID: s.MantaStorageID}
	}
	return out
}

func parseDurabilityLevel(raw string) (int, error) {
	if raw == "" {
		return defaultDurabilityLevel, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minDurabilityLevel || n > maxDurabilityLevel {
		return 0, apierrors.New(apierrors.CodeInvalidDurabilityLevel, "durability-level out of range")
	}
	return n, nil
}

// applyCORS sets Access-Control-* response headers from the stored
// object headers against the request Origin (spec.md §6 "CORS").
func applyCORS(w http.ResponseWriter, r *http.Request, stored map[string]string) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if allowed, ok := stored["m-access-control-allow-origin"]; ok && originMatches(allowed, origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	if methods, ok := stored["m-access-control-allow-methods"]; ok {
		w.Header().Set("Access-Control-Allow-Methods", methods)
	}
	if expose, ok := stored["m-access-control-expose-headers"]; ok {
		w.Header().Set("Access-Control-Expose-Headers", expose)
	}
	// access-control-max-age is deliberately never echoed (spec.md §6).
}

func originMatches(allowed, origin string) bool {
	if allowed == "*" {
		return true
	}
	for _, candidate := range strings.Split(allowed, ",") {
		if strings.TrimSpace(candidate) == origin {
			return true
		}
	}
	return false
}
