// Package picker selects storage nodes for new object writes (spec.md
// component 8 / §4.5). Inventory is refreshed periodically from the
// metadata service and held as a single pointer-switched snapshot so
// concurrent selectors never observe a partially-built map (spec.md §5).
package picker

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/model"
	"storj.io/mantafront/pkg/pb"
)

var mon = monkit.Package()

const (
	defaultInterval           = 30 * time.Second
	defaultUtilizationCeiling = 90
	defaultLag                = time.Hour
	defaultSizeMB             = 5120
	tuplesPerChoose           = 3
	pageSize                  = 500
)

// Config tunes the refresh cadence and select-time defaults (spec.md §4.5).
type Config struct {
	Interval           time.Duration
	UtilizationCeiling uint32
	Lag                time.Duration
	MultiDC            bool
	IgnoreSize         bool
}

func (c Config) withDefaults() Config {
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	if c.UtilizationCeiling == 0 {
		c.UtilizationCeiling = defaultUtilizationCeiling
	}
	if c.Lag == 0 {
		c.Lag = defaultLag
	}
	return c
}

type dcList struct {
	name  string
	nodes []model.StorageNode // sorted ascending by AvailableMB
}

// Picker holds the read-only inventory snapshot and the persistent
// round-robin cursor (spec.md §5 "Picker shared state").
type Picker struct {
	log *zap.Logger
	rpc pb.MetadataServiceClient
	cfg Config

	snapshot atomic.Value // map[string][]model.StorageNode

	cursor uint64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds a Picker with an empty inventory; call Refresh before the
// first Choose, and run RunRefreshLoop in a background goroutine.
func New(log *zap.Logger, rpc pb.MetadataServiceClient, cfg Config, seed int64) *Picker {
	p := &Picker{log: log, rpc: rpc, cfg: cfg.withDefaults(), rng: rand.New(rand.NewSource(seed))}
	p.snapshot.Store(map[string][]model.StorageNode{})
	return p
}

// RunRefreshLoop refreshes on entry and then every cfg.Interval until ctx
// is canceled (spec.md §4.5 "every interval and on startup").
func (p *Picker) RunRefreshLoop(ctx context.Context) {
	p.refreshLogged(ctx)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshLogged(ctx)
		}
	}
}

func (p *Picker) refreshLogged(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil {
		p.log.Warn("picker refresh failed, retaining previous inventory", zap.Error(err))
	}
}

// Refresh drains the metadata service's cursor-paginated storage-node
// scan and atomically swaps in the new inventory. An empty result set
// retains the previous inventory (spec.md §4.5).
func (p *Picker) Refresh(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	minTimestamp := time.Now().Add(-p.cfg.Lag).UnixNano() / int64(time.Millisecond)
	byDC := map[string][]model.StorageNode{}

	afterID := ""
	for {
		resp, err := p.rpc.ListStorageNodes(ctx, &pb.ListStorageNodesRequest{
			MaxPercentUsed: p.cfg.UtilizationCeiling,
			MinTimestampMs: minTimestamp,
			AfterId:        afterID,
			PageSize:       pageSize,
		})
		if err != nil {
			return apierrors.Classed(apierrors.TransportClass, apierrors.CodeInternalError, err)
		}
		for _, n := range resp.Nodes {
			byDC[n.Datacenter] = append(byDC[n.Datacenter], model.StorageNode{
				Datacenter:     n.Datacenter,
				MantaStorageID: n.MantaStorageId,
				AvailableMB:    n.AvailableMb,
				PercentUsed:    n.PercentUsed,
				Timestamp:      time.Unix(0, n.TimestampMs*int64(time.Millisecond)),
			})
			afterID = n.Id
		}
		if !resp.HasMore || len(resp.Nodes) == 0 {
			break
		}
	}

	if len(byDC) == 0 {
		p.log.Warn("picker refresh returned no eligible storage nodes, retaining previous inventory")
		return nil
	}

	for dc := range byDC {
		sort.Slice(byDC[dc], func(i, j int) bool { return byDC[dc][i].AvailableMB < byDC[dc][j].AvailableMB })
	}
	p.snapshot.Store(byDC)
	p.log.Info("picker topology refreshed", zap.Int("datacenters", len(byDC)))
	return nil
}

// Choose picks up to three tuples of replicas nodes each: a primary plus
// two backups (spec.md §4.5).
func (p *Picker) Choose(sizeBytes int64, replicas int) ([][]model.StorageNode, error) {
	sizeMB := p.normalizeSizeMB(sizeBytes)

	snapshot := p.snapshot.Load().(map[string][]model.StorageNode)
	candidates := make([]dcList, 0, len(snapshot))
	for name, nodes := range snapshot {
		lower := sort.Search(len(nodes), func(i int) bool { return nodes[i].AvailableMB >= sizeMB })
		if lower == len(nodes) {
			continue
		}
		candidates = append(candidates, dcList{name: name, nodes: nodes[lower:]})
	}
	// Deterministic base order before shuffling, so tests can seed rand
	// and get reproducible output.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].name < candidates[j].name })

	if p.cfg.MultiDC && len(candidates) < 2 {
		return nil, notEnoughSpace()
	}
	if replicas > 1 && len(candidates) == 0 {
		return nil, notEnoughSpace()
	}

	p.shuffle(candidates)

	// seen is shared across all three tuples of this Choose call, so a
	// backup tuple never repeats a node already handed out as primary.
	seen := map[string]struct{}{}
	tuples := make([][]model.StorageNode, 0, tuplesPerChoose)
	for t := 0; t < tuplesPerChoose; t++ {
		tuple, ok := p.pickTuple(candidates, replicas, seen)
		if !ok {
			if t == 0 {
				return nil, notEnoughSpace()
			}
			break
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

func (p *Picker) normalizeSizeMB(sizeBytes int64) uint64 {
	if p.cfg.IgnoreSize {
		return 1
	}
	if sizeBytes <= 0 {
		return defaultSizeMB
	}
	return uint64(math.Ceil(float64(sizeBytes) / (1 << 20)))
}

func (p *Picker) pickTuple(candidates []dcList, replicas int, seen map[string]struct{}) ([]model.StorageNode, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	distinctDCs := map[string]struct{}{}
	tuple := make([]model.StorageNode, 0, replicas)

	for i := 0; i < replicas; i++ {
		idx := atomic.AddUint64(&p.cursor, 1) - 1
		dc := candidates[idx%uint64(len(candidates))]
		node, ok := p.pickFromDC(dc, seen)
		if !ok {
			return nil, false
		}
		tuple = append(tuple, node)
		seen[node.MantaStorageID] = struct{}{}
		distinctDCs[dc.name] = struct{}{}
	}

	if p.cfg.MultiDC && replicas > 1 && len(distinctDCs) < 2 {
		return nil, false
	}
	return tuple, true
}

func (p *Picker) pickFromDC(dc dcList, seen map[string]struct{}) (model.StorageNode, bool) {
	n := len(dc.nodes)
	if n == 0 {
		return model.StorageNode{}, false
	}
	start := p.intn(n)
	for i := 0; i < n; i++ {
		node := dc.nodes[(start+i)%n]
		if _, dup := seen[node.MantaStorageID]; !dup {
			return node, true
		}
	}
	return model.StorageNode{}, false
}

func (p *Picker) intn(n int) int {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Intn(n)
}

// shuffle applies Fisher-Yates in place, using the picker's seeded rng.
func (p *Picker) shuffle(dcs []dcList) {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	for i := len(dcs) - 1; i > 0; i-- {
		j := p.rng.Intn(i + 1)
		dcs[i], dcs[j] = dcs[j], dcs[i]
	}
}

func notEnoughSpace() error {
	return apierrors.New(apierrors.CodeNotEnoughSpace, "no storage node satisfies the requested size and durability")
}
