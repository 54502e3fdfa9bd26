// Package metadata wraps the sharded metadata-service gRPC client (spec.md
// component 9) with retry of FindObjects on NoDatabasePeersError and a short-lived hot-entry
// cache, so repeated lookups against the same key (a directory listing
// walking a hot prefix, a PUT immediately followed by a conditional GET's
// sibling reads) don't all round-trip to the backing store.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/pb"
)

var mon = monkit.Package()

const cacheKeyPrefix = "mantafront:obj:"

// Config tunes cache freshness and retry behavior.
type Config struct {
	CacheTTL     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.CacheTTL == 0 {
		c.CacheTTL = 2 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
	return c
}

// Client is the chain.MetadataClient implementation backing handlers.
// cache may be nil, in which case every lookup goes straight to rpc.
type Client struct {
	log   *zap.Logger
	rpc   pb.MetadataServiceClient
	cache *redis.Client
	cfg   Config
}

// New builds a Client around an already-dialed gRPC stub and an optional
// redis cache.
func New(log *zap.Logger, rpc pb.MetadataServiceClient, cache *redis.Client, cfg Config) *Client {
	return &Client{log: log, rpc: rpc, cache: cache, cfg: cfg.withDefaults()}
}

// FindObject resolves one object or directory by its exact key.
func (c *Client) FindObject(ctx context.Context, key string) (obj *model.ObjectMetadata, err error) {
	defer mon.Task()(&ctx)(&err)

	if c.cache != nil {
		if rec, ok := c.cacheGet(ctx, key); ok {
			return fromRecord(rec), nil
		}
	}

	resp, err := c.findObjectsRetry(ctx, &pb.FindObjectsRequest{Key: key})
	if err != nil {
		return nil, c.translate(err)
	}
	if len(resp.Objects) == 0 {
		return nil, apierrors.TranslateMetadataError(apierrors.MetadataObjectNotFound, errors.New("object not found"), "")
	}

	rec := resp.Objects[0]
	c.cacheSet(ctx, rec)
	return fromRecord(rec), nil
}

// FindChildren lists immediate entries of a directory by key prefix.
// Listings are never cached: spec.md's hot-entry cache targets repeated
// single-object reads, not directory scans whose result set changes on
// every sibling write.
func (c *Client) FindChildren(ctx context.Context, directoryKey string) (children []model.ObjectMetadata, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := c.findObjectsRetry(ctx, &pb.FindObjectsRequest{Key: directoryKey, PrefixScan: true})
	if err != nil {
		return nil, c.translate(err)
	}

	out := make([]model.ObjectMetadata, len(resp.Objects))
	for i, rec := range resp.Objects {
		out[i] = *fromRecord(rec)
	}
	return out, nil
}

// PutObject persists obj, optionally conditioned on ifMatchEtag, and
// invalidates any cached entry for its key.
func (c *Client) PutObject(ctx context.Context, obj *model.ObjectMetadata, ifMatchEtag string) (etag string, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := c.rpc.PutMetadata(ctx, &pb.PutMetadataRequest{Object: toRecord(obj), IfMatchEtag: ifMatchEtag})
	if err != nil {
		return "", c.translate(err)
	}

	if c.cache != nil {
		if delErr := c.cache.Del(ctx, cacheKeyPrefix+obj.Key).Err(); delErr != nil && delErr != redis.Nil {
			c.log.Warn("metadata cache invalidate failed", zap.String("key", obj.Key), zap.Error(delErr))
		}
	}
	return resp.Etag, nil
}

// DeleteObject removes key, optionally conditioned on ifMatchEtag, and
// invalidates any cached entry.
func (c *Client) DeleteObject(ctx context.Context, key string, ifMatchEtag string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = c.rpc.DeleteMetadata(ctx, &pb.DeleteMetadataRequest{Key: key, IfMatchEtag: ifMatchEtag})
	if err != nil {
		return c.translate(err)
	}

	if c.cache != nil {
		if delErr := c.cache.Del(ctx, cacheKeyPrefix+key).Err(); delErr != nil && delErr != redis.Nil {
			c.log.Warn("metadata cache invalidate failed", zap.String("key", key), zap.Error(delErr))
		}
	}
	return nil
}

func (c *Client) findObjectsRetry(ctx context.Context, req *pb.FindObjectsRequest) (*pb.FindObjectsResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.rpc.FindObjects(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt+1)):
		}
	}
	return nil, lastErr
}

func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	kind := apierrors.ParseMetadataErrKind(firstToken(st.Message()))
	return kind == apierrors.MetadataNoDatabasePeers
}

func (c *Client) translate(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return apierrors.Classed(apierrors.TransportClass, apierrors.CodeInternalError, err)
	}
	kind := apierrors.ParseMetadataErrKind(firstToken(st.Message()))
	return apierrors.TranslateMetadataError(kind, err, st.Message())
}

// firstToken extracts the leading "Kind" token from a status message
// formatted as "Kind: detail" (the metadata service's error convention).
func firstToken(msg string) string {
	if i := strings.Index(msg, ":"); i >= 0 {
		return msg[:i]
	}
	return msg
}

func (c *Client) cacheGet(ctx context.Context, key string) (*pb.ObjectMetadataRecord, bool) {
	raw, err := c.cache.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("metadata cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var rec pb.ObjectMetadataRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.log.Warn("metadata cache entry unreadable, ignoring", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &rec, true
}

func (c *Client) cacheSet(ctx context.Context, rec *pb.ObjectMetadataRecord) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKeyPrefix+rec.Key, raw, c.cfg.CacheTTL).Err(); err != nil {
		c.log.Warn("metadata cache write failed", zap.String("key", rec.Key), zap.Error(err))
	}
}

func fromRecord(rec *pb.ObjectMetadataRecord) *model.ObjectMetadata {
	sharks := make([]model.Shark, len(rec.Sharks))
	for i, s := range rec.Sharks {
		sharks[i] = model.Shark{Datacenter: s.Datacenter, MantaStorageID: s.MantaStorageId}
	}
	return &model.ObjectMetadata{
		Key:           rec.Key,
		Type:          rec.Type,
		OwnerUUID:     rec.OwnerUuid,
		Etag:          rec.Etag,
		ContentMD5:    rec.ContentMd5,
		ContentLength: rec.ContentLength,
		ContentType:   rec.ContentType,
		Headers:       rec.Headers,
		Roles:         rec.Roles,
		Modified:      time.Unix(0, rec.ModifiedMs*int64(time.Millisecond)),
		Sharks:        sharks,
	}
}

func toRecord(obj *model.ObjectMetadata) *pb.ObjectMetadataRecord {
	sharks := make([]*pb.Shark, len(obj.Sharks))
	for i, s := range obj.Sharks {
		sharks[i] = &pb.Shark{Datacenter: s.Datacenter, MantaStorageId: s.MantaStorageID}
	}
	return &pb.ObjectMetadataRecord{
		Key:           obj.Key,
		Type:          obj.Type,
		OwnerUuid:     obj.OwnerUUID,
		Etag:          obj.Etag,
		ContentMd5:    obj.ContentMD5,
		ContentLength: obj.ContentLength,
		ContentType:   obj.ContentType,
		Headers:       obj.Headers,
		Roles:         obj.Roles,
		ModifiedMs:    obj.Modified.UnixNano() / int64(time.Millisecond),
		Sharks:        sharks,
	}
}
