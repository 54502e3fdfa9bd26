// Package chain implements the per-route middleware runtime (spec.md
// §4.7): an ordered list of (context, next) handlers, each of which
// proceeds, short-circuits with an error, or terminates successfully
// without running the rest of the chain.
package chain

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"storj.io/mantafront/pkg/identityclient"
	"storj.io/mantafront/pkg/model"
)

// MetadataClient is the subset of the metadata client the chain context
// exposes to handlers (spec.md §4.7). Defined here, at the consumer, so
// pkg/metadata has no dependency on pkg/chain.
type MetadataClient interface {
	FindObject(ctx context.Context, key string) (*model.ObjectMetadata, error)
	FindChildren(ctx context.Context, directoryKey string) ([]model.ObjectMetadata, error)
	PutObject(ctx context.Context, obj *model.ObjectMetadata, ifMatchEtag string) (etag string, err error)
	DeleteObject(ctx context.Context, key string, ifMatchEtag string) error
}

// Picker is the subset of the storage-node picker the chain context
// exposes to handlers.
type Picker interface {
	Choose(sizeBytes int64, replicas int) ([][]model.StorageNode, error)
}

// Auth is the mutable authentication record threaded through the auth
// pipeline stages (spec.md §4.3); it precedes and feeds into the final
// model.AuthContext.
type Auth struct {
	AccountID   string
	UserID      string
	Account     string
	User        string
	Token       string // opaque sealed token, if scheme was Token
	CallerKey   string // raw keyId string, if scheme was Signature
	Algorithm   string
	Signature   []byte
	Anonymous   bool
}

// Context is the per-request state shared across every handler in a
// chain (spec.md §4.7's minimum contract).
type Context struct {
	StdContext context.Context

	Method          string
	rawPath         string
	PathPreSanitize string
	Headers         http.Header
	Query           url.Values
	RequestID       string

	Log *zap.Logger

	Identity *identityclient.Client
	Metadata MetadataClient
	Picker   Picker

	Auth        Auth
	AuthContext model.AuthContext
}

// NewContext builds a Context for one inbound request. path is the
// canonicalized (post-sanitization) path; pathPreSanitize is the raw
// path as received, used only for presigned-URL signing (spec.md §4.2).
func NewContext(std context.Context, method, path, pathPreSanitize string, headers http.Header, query url.Values, requestID string, log *zap.Logger) *Context {
	return &Context{
		StdContext:      std,
		Method:          method,
		rawPath:         path,
		PathPreSanitize: pathPreSanitize,
		Headers:         headers,
		Query:           query,
		RequestID:       requestID,
		Log:             log,
		AuthContext:     model.AuthContext{Conditions: map[string]interface{}{}},
	}
}

// Path returns the canonicalized request path.
func (c *Context) Path() string { return c.rawPath }

// Terminate is passed to Next to end a chain successfully without
// running the remaining handlers, mirroring the "next(false)" signal
// spec.md §4.7 describes for the upgrade/hijack route.
var Terminate = &terminateSignal{}

type terminateSignal struct{}

func (*terminateSignal) Error() string { return "chain: terminate chain successfully" }

// Next is the continuation a Handler calls: Next(nil) proceeds,
// Next(err) short-circuits with err, and Next(Terminate) ends the chain
// successfully without invoking the remaining handlers.
type Next func(err error)

// Handler is one link in a chain.
type Handler func(ctx *Context, next Next)

// Chain is an ordered, immutable list of handlers bound to one route.
type Chain struct {
	handlers []Handler
}

// New builds a Chain from handlers, run in order.
func New(handlers ...Handler) *Chain {
	return &Chain{handlers: append([]Handler(nil), handlers...)}
}

// Run executes the chain against ctx, returning nil on success (full
// completion or an early Terminate), or the short-circuiting error.
//
// Run panics if a handler invokes next more than once — spec.md §4.7
// requires runtimes to guard against this programmer error.
func (c *Chain) Run(ctx *Context) error {
	return runFrom(ctx, c.handlers)
}

func runFrom(ctx *Context, handlers []Handler) error {
	if len(handlers) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		invoked  bool
		result   error
		done     = make(chan struct{})
	)

	next := func(err error) {
		mu.Lock()
		if invoked {
			mu.Unlock()
			panic("chain: next invoked more than once by the same handler")
		}
		invoked = true
		mu.Unlock()

		switch err {
		case nil:
			result = runFrom(ctx, handlers[1:])
		case Terminate:
			result = nil
		default:
			result = err
		}
		close(done)
	}

	handlers[0](ctx, next)
	<-done
	return result
}
