// Package routes binds the HTTP surface in spec.md §6 to the auth
// pipeline, authorizer, picker, metadata client, shark client, and MPU
// state machine, using gorilla/mux for path matching (the teacher
// references it in private/apigen's generated test harness; this is its
// first load-bearing use here).
package routes

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/authpipeline"
	"storj.io/mantafront/pkg/authz"
	"storj.io/mantafront/pkg/chain"
	"storj.io/mantafront/pkg/mpu"
	"storj.io/mantafront/pkg/sharks"
	"storj.io/mantafront/pkg/tokens"
)

// Server holds every dependency a route handler needs. All fields are
// required except AllowMpuDeletesParam, which New defaults to
// "allowMpuDeletes" when it is empty.
type Server struct {
	Log      *zap.Logger
	Pipeline *authpipeline.Pipeline
	Authz    *authz.Evaluator
	Metadata chain.MetadataClient
	Picker   chain.Picker
	Sharks   *sharks.Client
	MPU      *mpu.Manager
	Tokens   tokens.Config

	// AllowMpuDeletesParam is the query parameter name the MPU
	// namespace-protection override checks (spec.md §4.6); it is a field
	// rather than a literal so tests can exercise the handler without
	// depending on the exact parameter name chosen elsewhere.
	AllowMpuDeletesParam string
}

// New wires router to every route in spec.md §6.
func New(s *Server) http.Handler {
	if s.AllowMpuDeletesParam == "" {
		s.AllowMpuDeletesParam = "allowMpuDeletes"
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/{account}/tokens", s.wrap(actionCreateToken, nil, s.mintToken)).Methods(http.MethodPost)

	r.HandleFunc("/{account}/uploads", s.wrap(actionCreateMPU, nil, s.createUpload)).Methods(http.MethodPost)
	r.HandleFunc("/{account}/uploads/{id}", s.wrap(actionRedirectMPU, nil, s.redirectToParts)).Methods(http.MethodGet)
	r.HandleFunc("/{account}/uploads/{prefix}/{id}/state", s.wrap(actionGetMPUState, nil, s.getUploadState)).Methods(http.MethodGet)
	r.HandleFunc("/{account}/uploads/{prefix}/{id}/commit", s.wrap(actionCommitMPU, nil, s.commitUpload)).Methods(http.MethodPost)
	r.HandleFunc("/{account}/uploads/{prefix}/{id}/abort", s.wrap(actionAbortMPU, nil, s.abortUpload)).Methods(http.MethodPost)
	r.HandleFunc("/{account}/uploads/{prefix}/{id}/{partNum}", s.wrap(actionUploadPart, nil, s.uploadPart)).Methods(http.MethodPut)
	r.HandleFunc("/{account}/uploads/{prefix}/{id}", s.wrap(actionDeleteMPU, nil, s.deleteUpload)).Methods(http.MethodDelete)

	store := r.PathPrefix("/{account}/stor/").Subrouter()
	store.HandleFunc("", s.wrap(actionPutObject, keyOnlyLoader, s.putObject)).Methods(http.MethodPut)
	store.HandleFunc("/{rest:.*}", s.wrap(actionPutObject, keyOnlyLoader, s.putObject)).Methods(http.MethodPut)
	store.HandleFunc("", s.wrap(actionGetObject, existingObjectLoader, s.getObject)).Methods(http.MethodGet, http.MethodHead)
	store.HandleFunc("/{rest:.*}", s.wrap(actionGetObject, existingObjectLoader, s.getObject)).Methods(http.MethodGet, http.MethodHead)
	store.HandleFunc("", s.wrap(actionDeleteObject, existingObjectLoader, s.deleteObject)).Methods(http.MethodDelete)
	store.HandleFunc("/{rest:.*}", s.wrap(actionDeleteObject, existingObjectLoader, s.deleteObject)).Methods(http.MethodDelete)

	return r
}

// Action strings fed to the authorizer (spec.md §4.4's "authContext.action").
const (
	actionCreateToken  = "createtoken"
	actionCreateMPU    = "creatempu"
	actionUploadPart   = "uploadpart"
	actionRedirectMPU  = "getmpu"
	actionGetMPUState  = "getmpu"
	actionCommitMPU    = "commitmpu"
	actionAbortMPU     = "abortmpu"
	actionDeleteMPU    = "deletempu"
	actionPutObject    = "putobject"
	actionGetObject    = "getobject"
	actionDeleteObject = "deleteobject"
)

// routeHandler is the business-logic signature every route ultimately
// dispatches to, once auth and authorization have both succeeded.
type routeHandler func(ctx *chain.Context, w http.ResponseWriter, r *http.Request)

// resourceLoader fills in ctx.AuthContext.Resource.Key/Roles from
// whatever metadata the route's target already has, before the
// authorizer runs (spec.md §4.3: "resource key and role tags come from
// loaded metadata"). Routes with no pre-existing resource (token mint,
// MPU create) pass nil.
type resourceLoader func(ctx *chain.Context, r *http.Request) error

// wrap runs the auth pipeline, a route-specific resource lookup, and the
// authorizer ahead of handler, translating any short-circuiting error
// into a wire response. This is the middleware chain spec.md §4.7
// describes, collapsed to the stages every route shares.
func (s *Server) wrap(action string, load resourceLoader, handler routeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewV4().String()
		}

		cctx := chain.NewContext(r.Context(), r.Method, r.URL.Path, r.URL.Path, r.Header, r.URL.Query(), requestID, s.Log.With(zap.String("request_id", requestID)))
		cctx.Metadata = s.Metadata
		cctx.Picker = s.Picker

		w.Header().Set("Server", "Manta/2")

		if err := s.Pipeline.Run(cctx); err != nil {
			writeError(w, err)
			return
		}

		if load != nil {
			if err := load(cctx, r); err != nil {
				writeError(w, err)
				return
			}
		}

		cctx.AuthContext.Action = action
		if err := s.Authz.Evaluate(cctx.StdContext, &cctx.AuthContext); err != nil {
			writeError(w, err)
			return
		}

		handler(cctx, w, r)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Server", "Manta/2")
	writeError(w, apierrors.New(apierrors.CodeResourceNotFound, "no such route"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Server", "Manta/2")
	writeError(w, apierrors.New(apierrors.CodeMethodNotAllowed, "method not allowed on this path"))
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := apierrors.As(err)
	if apiErr == nil {
		apiErr = apierrors.Internal(err)
	}
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(apiErr.RetryAfter/time.Second)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr.ToBody())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
