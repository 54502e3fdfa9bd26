package picker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/pb"
	"storj.io/mantafront/pkg/picker"
)

// fakeMetadataRPC serves pages in order: an empty AfterId starts at page
// 0, and the client is expected to pass the last node's Id from page N
// back as AfterId to receive page N+1.
type fakeMetadataRPC struct {
	pages     [][]*pb.StorageNodeRecord
	nextIndex map[string]int
}

func (f *fakeMetadataRPC) indexed() map[string]int {
	if f.nextIndex != nil {
		return f.nextIndex
	}
	f.nextIndex = map[string]int{}
	for i, page := range f.pages {
		if len(page) == 0 {
			continue
		}
		f.nextIndex[page[len(page)-1].Id] = i + 1
	}
	return f.nextIndex
}

func (f *fakeMetadataRPC) FindObjects(ctx context.Context, in *pb.FindObjectsRequest, opts ...grpc.CallOption) (*pb.FindObjectsResponse, error) {
	return nil, nil
}

func (f *fakeMetadataRPC) PutMetadata(ctx context.Context, in *pb.PutMetadataRequest, opts ...grpc.CallOption) (*pb.PutMetadataResponse, error) {
	return nil, nil
}

func (f *fakeMetadataRPC) DeleteMetadata(ctx context.Context, in *pb.DeleteMetadataRequest, opts ...grpc.CallOption) (*pb.DeleteMetadataResponse, error) {
	return &pb.DeleteMetadataResponse{}, nil
}

func (f *fakeMetadataRPC) ListStorageNodes(ctx context.Context, in *pb.ListStorageNodesRequest, opts ...grpc.CallOption) (*pb.ListStorageNodesResponse, error) {
	pageIdx := 0
	if in.AfterId != "" {
		idx, ok := f.indexed()[in.AfterId]
		if !ok {
			return &pb.ListStorageNodesResponse{}, nil
		}
		pageIdx = idx
	}
	if pageIdx >= len(f.pages) {
		return &pb.ListStorageNodesResponse{}, nil
	}
	return &pb.ListStorageNodesResponse{
		Nodes:   f.pages[pageIdx],
		HasMore: pageIdx < len(f.pages)-1,
	}, nil
}

func node(dc, id string, availableMB uint64) *pb.StorageNodeRecord {
	return &pb.StorageNodeRecord{Datacenter: dc, MantaStorageId: id, AvailableMb: availableMB, PercentUsed: 10, TimestampMs: 1, Id: id}
}

func TestRefreshPaginatesAndSortsByDatacenter(t *testing.T) {
	rpc := &fakeMetadataRPC{pages: [][]*pb.StorageNodeRecord{
		{node("us-east", "n1", 500), node("us-east", "n2", 100)},
		{node("us-west", "n3", 300)},
	}}
	p := picker.New(zaptest.NewLogger(t), rpc, picker.Config{}, 1)

	require.NoError(t, p.Refresh(context.Background()))

	tuples, err := p.Choose(50*1<<20, 1)
	require.NoError(t, err)
	require.NotEmpty(t, tuples)
}

func TestRefreshRetainsPreviousInventoryWhenEmpty(t *testing.T) {
	rpc := &fakeMetadataRPC{pages: [][]*pb.StorageNodeRecord{
		{node("us-east", "n1", 500)},
	}}
	p := picker.New(zaptest.NewLogger(t), rpc, picker.Config{}, 1)
	require.NoError(t, p.Refresh(context.Background()))

	rpc.pages = [][]*pb.StorageNodeRecord{{}}
	require.NoError(t, p.Refresh(context.Background()))

	tuples, err := p.Choose(1<<20, 1)
	require.NoError(t, err)
	require.NotEmpty(t, tuples)
}

func seedPicker(t *testing.T, nodes map[string][]model.StorageNode, cfg picker.Config, seed int64) *picker.Picker {
	t.Helper()
	var records [][]*pb.StorageNodeRecord
	for dc, ns := range nodes {
		var page []*pb.StorageNodeRecord
		for _, n := range ns {
			page = append(page, &pb.StorageNodeRecord{
				Datacenter: dc, MantaStorageId: n.MantaStorageID, AvailableMb: n.AvailableMB, PercentUsed: 10, TimestampMs: 1, Id: n.MantaStorageID,
			})
		}
		records = append(records, page)
	}
	rpc := &fakeMetadataRPC{pages: records}
	p := picker.New(zaptest.NewLogger(t), rpc, cfg, seed)
	require.NoError(t, p.Refresh(context.Background()))
	return p
}

func TestChooseDropsDatacentersBelowSizeThreshold(t *testing.T) {
	p := seedPicker(t, map[string][]model.StorageNode{
		"us-east": {{MantaStorageID: "n1", AvailableMB: 10}, {MantaStorageID: "n2", AvailableMB: 20}},
		"us-west": {{MantaStorageID: "n3", AvailableMB: 5000}},
	}, picker.Config{}, 1)

	tuples, err := p.Choose(100*1<<20, 1)
	require.NoError(t, err)
	require.NotEmpty(t, tuples)
	for _, tuple := range tuples {
		for _, n := range tuple {
			require.Equal(t, "n3", n.MantaStorageID)
		}
	}
}

func TestChooseIgnoreSizeTreatsRequirementAsOneMB(t *testing.T) {
	p := seedPicker(t, map[string][]model.StorageNode{
		"us-east": {{MantaStorageID: "n1", AvailableMB: 0}},
	}, picker.Config{IgnoreSize: true}, 1)

	// A node reporting 0 available MB still fails the >=1MB lower bound
	// even with ignoreSize, so the first tuple is incomplete.
	_, err := p.Choose(10<<30, 1)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeNotEnoughSpace, apiErr.Code)
}

func TestChooseMultiDCRequiresTwoDatacenters(t *testing.T) {
	p := seedPicker(t, map[string][]model.StorageNode{
		"us-east": {{MantaStorageID: "n1", AvailableMB: 5000}},
	}, picker.Config{MultiDC: true}, 1)

	_, err := p.Choose(1<<20, 1)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeNotEnoughSpace, apiErr.Code)
}

func TestChooseReplicasGreaterThanOneRequiresNonEmptyInventory(t *testing.T) {
	p := seedPicker(t, map[string][]model.StorageNode{}, picker.Config{}, 1)

	_, err := p.Choose(1<<20, 2)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeNotEnoughSpace, apiErr.Code)
}

func TestChooseReturnsUpToThreeTuplesOfReplicaSize(t *testing.T) {
	p := seedPicker(t, map[string][]model.StorageNode{
		"us-east": {
			{MantaStorageID: "n1", AvailableMB: 5000},
			{MantaStorageID: "n2", AvailableMB: 5000},
			{MantaStorageID: "n3", AvailableMB: 5000},
		},
		"us-west": {
			{MantaStorageID: "n4", AvailableMB: 5000},
			{MantaStorageID: "n5", AvailableMB: 5000},
			{MantaStorageID: "n6", AvailableMB: 5000},
		},
	}, picker.Config{MultiDC: true}, 7)

	tuples, err := p.Choose(1<<20, 2)
	require.NoError(t, err)
	require.LessOrEqual(t, len(tuples), 3)
	require.NotEmpty(t, tuples)
	for _, tuple := range tuples {
		require.Len(t, tuple, 2)
		ids := map[string]struct{}{}
		dcs := map[string]bool{}
		for _, n := range tuple {
			ids[n.MantaStorageID] = struct{}{}
			if n.MantaStorageID == "n1" || n.MantaStorageID == "n2" || n.MantaStorageID == "n3" {
				dcs["us-east"] = true
			} else {
				dcs["us-west"] = true
			}
		}
		require.Len(t, ids, 2, "no duplicate node within a tuple")
		require.GreaterOrEqual(t, len(dcs), 2, "multiDC + replicas>1 tuples span >=2 datacenters")
	}
}

func TestChooseFailsWhenFirstTupleIncomplete(t *testing.T) {
	p := seedPicker(t, map[string][]model.StorageNode{
		"us-east": {{MantaStorageID: "n1", AvailableMB: 5000}},
	}, picker.Config{}, 1)

	_, err := p.Choose(1<<20, 2)
	require.Error(t, err)
	apiErr := apierrors.As(err)
	require.NotNil(t, apiErr)
	require.Equal(t, apierrors.CodeNotEnoughSpace, apiErr.Code)
}

func TestChooseSingleReplicaReturnsThreeDistinctTuplesWhenAvailable(t *testing.T) {
	p := seedPicker(t, map[string][]model.StorageNode{
		"us-east": {
			{MantaStorageID: "n1", AvailableMB: 5000},
			{MantaStorageID: "n2", AvailableMB: 5000},
			{MantaStorageID: "n3", AvailableMB: 5000},
		},
	}, picker.Config{}, 3)

	tuples, err := p.Choose(1<<20, 1)
	require.NoError(t, err)
	require.Len(t, tuples, 3)
	seen := map[string]struct{}{}
	for _, tuple := range tuples {
		require.Len(t, tuple, 1)
		seen[tuple[0].MantaStorageID] = struct{}{}
	}
	require.Len(t, seen, 3, "round robin + distinct cursor positions should not repeat a node across a single Choose call's tuples when enough nodes exist")
}
