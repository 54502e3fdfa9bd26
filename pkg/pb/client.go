package pb

import (
	"context"

	"google.golang.org/grpc"
)

// Full method names, the same shape protoc-gen-go-grpc would emit.
const (
	identityServiceResolveIdentity = "/mantafront.identity.IdentityService/ResolveIdentity"
	identityServiceEvaluateRoles   = "/mantafront.identity.IdentityService/EvaluateRoles"

	metadataServiceFindObjects      = "/mantafront.metadata.MetadataService/FindObjects"
	metadataServicePutMetadata      = "/mantafront.metadata.MetadataService/PutMetadata"
	metadataServiceDeleteMetadata   = "/mantafront.metadata.MetadataService/DeleteMetadata"
	metadataServiceListStorageNodes = "/mantafront.metadata.MetadataService/ListStorageNodes"
)

// IdentityServiceClient is the hand-maintained client stub for the
// external identity service (spec.md component 2). There is no generated
// .pb.go step in this repository; the stub is written the way
// protoc-gen-go-grpc would have emitted it, against hand-authored
// messages in this package.
type IdentityServiceClient interface {
	ResolveIdentity(ctx context.Context, in *ResolveIdentityRequest, opts ...grpc.CallOption) (*ResolveIdentityResponse, error)
	EvaluateRoles(ctx context.Context, in *EvaluateRolesRequest, opts ...grpc.CallOption) (*EvaluateRolesResponse, error)
}

type identityServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewIdentityServiceClient wraps cc for identity-service calls.
func NewIdentityServiceClient(cc grpc.ClientConnInterface) IdentityServiceClient {
	return &identityServiceClient{cc: cc}
}

func (c *identityServiceClient) ResolveIdentity(ctx context.Context, in *ResolveIdentityRequest, opts ...grpc.CallOption) (*ResolveIdentityResponse, error) {
	out := new(ResolveIdentityResponse)
	if err := c.cc.Invoke(ctx, identityServiceResolveIdentity, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *identityServiceClient) EvaluateRoles(ctx context.Context, in *EvaluateRolesRequest, opts ...grpc.CallOption) (*EvaluateRolesResponse, error) {
	out := new(EvaluateRolesResponse)
	if err := c.cc.Invoke(ctx, identityServiceEvaluateRoles, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// MetadataServiceClient is the hand-maintained client stub for the
// sharded metadata service (spec.md component 9). ListStorageNodes is
// modeled as a paged unary call (caller supplies AfterId/PageSize and
// loops while HasMore is true) rather than a server stream — the cursor
// semantics in spec.md §4.5 only require ordered, resumable pages.
type MetadataServiceClient interface {
	FindObjects(ctx context.Context, in *FindObjectsRequest, opts ...grpc.CallOption) (*FindObjectsResponse, error)
	PutMetadata(ctx context.Context, in *PutMetadataRequest, opts ...grpc.CallOption) (*PutMetadataResponse, error)
	DeleteMetadata(ctx context.Context, in *DeleteMetadataRequest, opts ...grpc.CallOption) (*DeleteMetadataResponse, error)
	ListStorageNodes(ctx context.Context, in *ListStorageNodesRequest, opts ...grpc.CallOption) (*ListStorageNodesResponse, error)
}

type metadataServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewMetadataServiceClient wraps cc for metadata-service calls.
func NewMetadataServiceClient(cc grpc.ClientConnInterface) MetadataServiceClient {
	return &metadataServiceClient{cc: cc}
}

func (c *metadataServiceClient) FindObjects(ctx context.Context, in *FindObjectsRequest, opts ...grpc.CallOption) (*FindObjectsResponse, error) {
	out := new(FindObjectsResponse)
	if err := c.cc.Invoke(ctx, metadataServiceFindObjects, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metadataServiceClient) PutMetadata(ctx context.Context, in *PutMetadataRequest, opts ...grpc.CallOption) (*PutMetadataResponse, error) {
	out := new(PutMetadataResponse)
	if err := c.cc.Invoke(ctx, metadataServicePutMetadata, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metadataServiceClient) DeleteMetadata(ctx context.Context, in *DeleteMetadataRequest, opts ...grpc.CallOption) (*DeleteMetadataResponse, error) {
	out := new(DeleteMetadataResponse)
	if err := c.cc.Invoke(ctx, metadataServiceDeleteMetadata, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metadataServiceClient) ListStorageNodes(ctx context.Context, in *ListStorageNodesRequest, opts ...grpc.CallOption) (*ListStorageNodesResponse, error) {
	out := new(ListStorageNodesResponse)
	if err := c.cc.Invoke(ctx, metadataServiceListStorageNodes, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
