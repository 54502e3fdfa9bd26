package metadata_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/metadata"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/pb"
)

type fakeMetadataRPC struct {
	findCalls    int
	findResponse *pb.FindObjectsResponse
	findErr      error

	putRequest  *pb.PutMetadataRequest
	putResponse *pb.PutMetadataResponse
	putErr      error
}

func (f *fakeMetadataRPC) FindObjects(ctx context.Context, in *pb.FindObjectsRequest, opts ...grpc.CallOption) (*pb.FindObjectsResponse, error) {
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findResponse, nil
}

func (f *fakeMetadataRPC) PutMetadata(ctx context.Context, in *pb.PutMetadataRequest, opts ...grpc.CallOption) (*pb.PutMetadataResponse, error) {
	f.putRequest = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	return f.putResponse, nil
}

func (f *fakeMetadataRPC) DeleteMetadata(ctx context.Context, in *pb.DeleteMetadataRequest, opts ...grpc.CallOption) (*pb.DeleteMetadataResponse, error) {
	return &pb.DeleteMetadataResponse{}, nil
}

func (f *fakeMetadataRPC) ListStorageNodes(ctx context.Context, in *pb.ListStorageNodesRequest, opts ...grpc.CallOption) (*pb.ListStorageNodesResponse, error) {
	return nil, nil
}

func newRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() { mr.Close() }
}

func TestFindObjectCachesAfterFirstLookup(t *testing.T) {
	cache, cleanup := newRedis(t)
	defer cleanup()

	rpc := &fakeMetadataRPC{findResponse: &pb.FindObjectsResponse{Objects: []*pb.ObjectMetadataRecord{
		{Key: "/poseidon/stor/obj", Type: "object", Etag: "etag-1", OwnerUuid: "acct-1"},
	}}}
	c := metadata.New(zaptest.NewLogger(t), rpc, cache, metadata.Config{CacheTTL: time.Minute})

	obj, err := c.FindObject(context.Background(), "/poseidon/stor/obj")
	require.NoError(t, err)
	require.Equal(t, "etag-1", obj.Etag)
	require.Equal(t, 1, rpc.findCalls)

	obj2, err := c.FindObject(context.Background(), "/poseidon/stor/obj")
	require.NoError(t, err)
	require.Equal(t, "etag-1", obj2.Etag)
	require.Equal(t, 1, rpc.findCalls, "second lookup should be served from cache")
}

func TestFindObjectNotFoundTranslatesToResourceNotFound(t *testing.T) {
	cache, cleanup := newRedis(t)
	defer cleanup()

	rpc := &fakeMetadataRPC{findResponse: &pb.FindObjectsResponse{}}
	c := metadata.New(zaptest.NewLogger(t), rpc, cache, metadata.Config{})

	_, err := c.FindObject(context.Background(), "/poseidon/stor/missing")
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeResourceNotFound, apiErr.Code)
}

func TestFindObjectTranslatesEtagConflict(t *testing.T) {
	cache, cleanup := newRedis(t)
	defer cleanup()

	rpc := &fakeMetadataRPC{findErr: status.Error(codes.FailedPrecondition, "EtagConflict: stale etag")}
	c := metadata.New(zaptest.NewLogger(t), rpc, cache, metadata.Config{})

	_, err := c.FindObject(context.Background(), "/poseidon/stor/obj")
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeConcurrentRequest, apiErr.Code)
}

func TestFindObjectRetriesOnNoDatabasePeersThenSucceeds(t *testing.T) {
	cache, cleanup := newRedis(t)
	defer cleanup()

	calls := 0
	rpc := &retryingRPC{
		fail: status.Error(codes.Unavailable, "NoDatabasePeersError: OverloadedError: pool exhausted"),
		succeed: &pb.FindObjectsResponse{Objects: []*pb.ObjectMetadataRecord{{Key: "/poseidon/stor/obj", Etag: "etag-2"}}},
		failFor: 1,
		calls:   &calls,
	}
	c := metadata.New(zaptest.NewLogger(t), rpc, cache, metadata.Config{MaxRetries: 2, RetryBackoff: time.Millisecond})

	obj, err := c.FindObject(context.Background(), "/poseidon/stor/obj")
	require.NoError(t, err)
	require.Equal(t, "etag-2", obj.Etag)
	require.Equal(t, 2, calls)
}

func TestFindObjectOverloadedSurfacesAsServiceUnavailable(t *testing.T) {
	cache, cleanup := newRedis(t)
	defer cleanup()

	rpc := &fakeMetadataRPC{findErr: status.Error(codes.Unavailable, "NoDatabasePeersError: OverloadedError: pool exhausted")}
	c := metadata.New(zaptest.NewLogger(t), rpc, cache, metadata.Config{MaxRetries: 0})

	_, err := c.FindObject(context.Background(), "/poseidon/stor/obj")
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeServiceUnavailable, apiErr.Code)
}

func TestPutObjectInvalidatesCache(t *testing.T) {
	cache, cleanup := newRedis(t)
	defer cleanup()

	rpc := &fakeMetadataRPC{
		findResponse: &pb.FindObjectsResponse{Objects: []*pb.ObjectMetadataRecord{{Key: "/poseidon/stor/obj", Etag: "etag-1"}}},
		putResponse:  &pb.PutMetadataResponse{Etag: "etag-2"},
	}
	c := metadata.New(zaptest.NewLogger(t), rpc, cache, metadata.Config{CacheTTL: time.Minute})

	_, err := c.FindObject(context.Background(), "/poseidon/stor/obj")
	require.NoError(t, err)
	require.Equal(t, 1, rpc.findCalls)

	etag, err := c.PutObject(context.Background(), &model.ObjectMetadata{Key: "/poseidon/stor/obj"}, "etag-1")
	require.NoError(t, err)
	require.Equal(t, "etag-2", etag)

	rpc.findResponse = &pb.FindObjectsResponse{Objects: []*pb.ObjectMetadataRecord{{Key: "/poseidon/stor/obj", Etag: "etag-2"}}}
	obj, err := c.FindObject(context.Background(), "/poseidon/stor/obj")
	require.NoError(t, err)
	require.Equal(t, "etag-2", obj.Etag, "cache invalidation on put should force a fresh lookup")
	require.Equal(t, 2, rpc.findCalls)
}

func TestFindChildrenUsesPrefixScanAndIsNeverCached(t *testing.T) {
	cache, cleanup := newRedis(t)
	defer cleanup()

	rpc := &fakeMetadataRPC{findResponse: &pb.FindObjectsResponse{Objects: []*pb.ObjectMetadataRecord{
		{Key: "/poseidon/stor/a"}, {Key: "/poseidon/stor/b"},
	}}}
	c := metadata.New(zaptest.NewLogger(t), rpc, cache, metadata.Config{})

	children, err := c.FindChildren(context.Background(), "/poseidon/stor")
	require.NoError(t, err)
	require.Len(t, children, 2)

	_, err = c.FindChildren(context.Background(), "/poseidon/stor")
	require.NoError(t, err)
	require.Equal(t, 2, rpc.findCalls)
}

// retryingRPC fails with a retryable error for the first failFor calls,
// then returns succeed.
type retryingRPC struct {
	fail    error
	succeed *pb.FindObjectsResponse
	failFor int
	calls   *int
}

func (r *retryingRPC) FindObjects(ctx context.Context, in *pb.FindObjectsRequest, opts ...grpc.CallOption) (*pb.FindObjectsResponse, error) {
	*r.calls++
	if *r.calls <= r.failFor {
		return nil, r.fail
	}
	return r.succeed, nil
}

func (r *retryingRPC) PutMetadata(ctx context.Context, in *pb.PutMetadataRequest, opts ...grpc.CallOption) (*pb.PutMetadataResponse, error) {
	return nil, nil
}

func (r *retryingRPC) DeleteMetadata(ctx context.Context, in *pb.DeleteMetadataRequest, opts ...grpc.CallOption) (*pb.DeleteMetadataResponse, error) {
	return &pb.DeleteMetadataResponse{}, nil
}

func (r *retryingRPC) ListStorageNodes(ctx context.Context, in *pb.ListStorageNodesRequest, opts ...grpc.CallOption) (*pb.ListStorageNodesResponse, error) {
	return nil, nil
}
