package routes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/chain"
	"storj.io/mantafront/pkg/mpu"
)

// createUpload handles POST /:account/uploads.
func (s *Server) createUpload(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	var body struct {
		ObjectPath    string            `json:"objectPath"`
		Headers       map[string]string `json:"headers"`
		ContentLength int64             `json:"contentLength"`
		DurabilityLevel int             `json:"durabilityLevel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierrors.New(apierrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}
	if body.ContentLength == 0 {
		body.ContentLength = -1
	}
	if body.DurabilityLevel == 0 {
		body.DurabilityLevel = defaultDurabilityLevel
	}

	owner := ctx.AuthContext.Resource.Owner
	up, err := s.MPU.Create(ctx.StdContext, owner.Login, owner.UUID, body.ObjectPath, body.Headers, body.ContentLength, body.DurabilityLevel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

// uploadPart handles PUT /:account/uploads/<prefix>/:id/:partNum.
func (s *Server) uploadPart(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	partNum, err := strconv.Atoi(vars["partNum"])
	if err != nil {
		writeError(w, apierrors.New(apierrors.CodeMultipartUploadPartNum, "part number is not an integer"))
		return
	}
	if err := mpu.ValidatePartNum(partNum); err != nil {
		writeError(w, err)
		return
	}

	owner := ctx.AuthContext.Resource.Owner
	up, err := s.MPU.Load(ctx.StdContext, owner.Login, vars["prefix"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	key := "/" + up.Account + "/uploads/" + up.PartsDirectory + "/" + up.ID + "/" + strconv.Itoa(partNum)
	tuples, err := ctx.Picker.Choose(r.ContentLength, up.NumCopies)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(tuples) == 0 {
		writeError(w, apierrors.New(apierrors.CodeNotEnoughSpace, "no storage nodes available"))
		return
	}

	etag, err := s.Sharks.PutAll(ctx.StdContext, tuples[0], key, r.Body, r.ContentLength)
	if err != nil {
		writeError(w, err)
		return
	}

	partObj := partMetadata(key, up.OwnerUUID, r.Header.Get("Content-MD5"), r.ContentLength)
	storedEtag, err := ctx.Metadata.PutObject(ctx.StdContext, partObj, "")
	if err != nil {
		writeError(w, err)
		return
	}
	if storedEtag == "" {
		storedEtag = etag
	}
	w.Header().Set("Etag", storedEtag)
	w.WriteHeader(http.StatusNoContent)
}

// redirectToParts handles GET /:account/uploads/:id: the id alone
// doesn't carry the parts-directory prefix, but the prefix is a pure
// function of the id (mpu.DerivePartsDirectory), so it can be recomputed
// without a metadata scan.
func (s *Server) redirectToParts(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	owner := ctx.AuthContext.Resource.Owner
	id := mux.Vars(r)["id"]
	prefix := mpu.DerivePartsDirectory(id)

	up, err := s.MPU.Load(ctx.StdContext, owner.Login, prefix, id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/"+up.Account+"/uploads/"+up.PartsDirectory+"/"+up.ID)
	w.WriteHeader(http.StatusFound)
}

// getUploadState handles GET /:account/uploads/<prefix>/:id/state.
func (s *Server) getUploadState(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner := ctx.AuthContext.Resource.Owner
	up, err := s.MPU.Load(ctx.StdContext, owner.Login, vars["prefix"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

// commitUpload handles POST /:account/uploads/<prefix>/:id/commit.
func (s *Server) commitUpload(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner := ctx.AuthContext.Resource.Owner

	var body struct {
		Parts []string `json:"parts"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, apierrors.New(apierrors.CodeBadRequest, "request body is not valid JSON"))
			return
		}
	}

	up, err := s.MPU.Load(ctx.StdContext, owner.Login, vars["prefix"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	computedMD5, err := s.MPU.Commit(ctx.StdContext, up, body.Parts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("computed-md5", computedMD5)
	w.WriteHeader(http.StatusNoContent)
}

// abortUpload handles POST /:account/uploads/<prefix>/:id/abort.
func (s *Server) abortUpload(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner := ctx.AuthContext.Resource.Owner

	up, err := s.MPU.Load(ctx.StdContext, owner.Login, vars["prefix"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.MPU.Abort(ctx.StdContext, up); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteUpload handles DELETE /:account/uploads/<prefix>/:id: spec.md
// §4.6's MPU namespace protection — MethodNotAllowed for everyone except
// an operator carrying the exact allowMpuDeletes=true override.
func (s *Server) deleteUpload(ctx *chain.Context, w http.ResponseWriter, r *http.Request) {
	key := ctx.Path()
	ctx.AuthContext.Resource.Key = key

	if err := mpuDeleteOverride(ctx, r, s.AllowMpuDeletesParam); err != nil {
		writeError(w, err)
		return
	}

	if err := ctx.Metadata.DeleteObject(ctx.StdContext, key, r.Header.Get("If-Match")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mpuDeleteOverride enforces spec.md §4.6's MPU namespace protection for
// the ordinary DELETE verb against an uploads path.
func mpuDeleteOverride(ctx *chain.Context, r *http.Request, queryParam string) error {
	return mpu.DeleteOverrideAllowed(ctx.AuthContext.Principal.Account, r.URL.Query().Get(queryParam))
}
