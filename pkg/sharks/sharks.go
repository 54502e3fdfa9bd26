// Package sharks is an HTTP client for the storage daemons ("sharks")
// that hold object bytes (spec.md §4.10, §5). Unlike the metadata and
// identity services, sharks speak plain HTTP PUT/GET against
// http://<manta_storage_id>/<partsDirectory or account path>, so this
// client is a thin net/http wrapper rather than a gRPC stub: there is no
// protobuf service definition to generate against.
package sharks

import (
	"context"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/model"
)

var mon = monkit.Package()

// Config tunes the connection dial timeout and the client's idle-connection
// pool. RequestIdle is defaulted and stored but not applied to any request:
// the client sets no idle timeout on transfers and never returns
// UploadTimeout.
type Config struct {
	DialTimeout   time.Duration
	RequestIdle   time.Duration
	MaxIdleConns  int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RequestIdle == 0 {
		c.RequestIdle = 30 * time.Second
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	return c
}

// Client streams object bytes to and from a chosen tuple of storage nodes.
type Client struct {
	log  *zap.Logger
	http *http.Client
	cfg  Config
}

// New builds a Client. Requests always use plain http://, addressed as
// http://<manta_storage_id><path>.
func New(log *zap.Logger, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		log: log,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext,
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConns,
			},
		},
		cfg: cfg,
	}
}

// PutAll streams one copy of body to every node in nodes, in order,
// returning the etag-bearing response from the first node that accepts
// the write. Caller-side cancellation (a disconnected client) propagates
// through ctx and aborts the in-flight upstream transfer immediately
// (spec.md §5).
//
// body must support being read more than once only if the first node's
// PUT fails; PutAll does not buffer it itself, so a caller that needs
// retry-safety across a non-seekable body should wrap it.
func (c *Client) PutAll(ctx context.Context, nodes []model.StorageNode, path string, body io.Reader, contentLength int64) (etag string, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(nodes) == 0 {
		return "", exhausted()
	}

	for _, node := range nodes {
		etag, putErr := c.put(ctx, node, path, body, contentLength)
		if putErr == nil {
			return etag, nil
		}
		if ctx.Err() != nil {
			return "", apierrors.New(apierrors.CodeUploadAbandoned, "client disconnected during upload")
		}
		c.log.Warn("shark put failed, trying next replica", zap.String("manta_storage_id", node.MantaStorageID), zap.Error(putErr))
	}
	return "", exhausted()
}

func (c *Client) put(ctx context.Context, node model.StorageNode, path string, body io.Reader, contentLength int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, "http://"+node.MantaStorageID+path, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = contentLength

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(ioutil.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return "", apierrors.Internal(errStatus(resp.StatusCode))
	}
	return resp.Header.Get("Etag"), nil
}

// Get opens a GET stream against the first reachable node in nodes for
// path, returning the response body for the caller to copy downstream.
// The caller must Close the returned io.ReadCloser.
func (c *Client) Get(ctx context.Context, nodes []model.StorageNode, path string) (body io.ReadCloser, contentLength int64, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(nodes) == 0 {
		return nil, 0, exhausted()
	}

	for _, node := range nodes {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+node.MantaStorageID+path, nil)
		if reqErr != nil {
			return nil, 0, reqErr
		}
		resp, doErr := c.http.Do(req)
		if doErr != nil {
			c.log.Warn("shark get failed, trying next replica", zap.String("manta_storage_id", node.MantaStorageID), zap.Error(doErr))
			continue
		}
		if resp.StatusCode/100 != 2 {
			_ = resp.Body.Close()
			c.log.Warn("shark get returned non-2xx, trying next replica", zap.String("manta_storage_id", node.MantaStorageID), zap.Int("status", resp.StatusCode))
			continue
		}
		return resp.Body, resp.ContentLength, nil
	}
	if ctx.Err() != nil {
		return nil, 0, apierrors.New(apierrors.CodeUploadAbandoned, "client disconnected during download")
	}
	return nil, 0, exhausted()
}

func exhausted() error {
	return apierrors.New(apierrors.CodeServiceUnavailable, "all storage daemons for this object are unreachable").WithRetryAfter(30 * time.Second)
}

type errStatus int

func (e errStatus) Error() string { return http.StatusText(int(e)) }
