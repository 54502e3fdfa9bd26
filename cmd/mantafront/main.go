// Command mantafront runs the Manta-compatible object storage front end
// (spec.md): the HTTP surface in pkg/routes, wired to the auth pipeline,
// authorizer, metadata client, picker, shark client, and MPU manager.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/mantafront/pkg/authpipeline"
	"storj.io/mantafront/pkg/authz"
	"storj.io/mantafront/pkg/cfgstruct"
	"storj.io/mantafront/pkg/chain"
	"storj.io/mantafront/pkg/identityclient"
	"storj.io/mantafront/pkg/metadata"
	"storj.io/mantafront/pkg/mpu"
	"storj.io/mantafront/pkg/pb"
	"storj.io/mantafront/pkg/picker"
	"storj.io/mantafront/pkg/process"
	"storj.io/mantafront/pkg/routes"
	"storj.io/mantafront/pkg/sharks"
	"storj.io/mantafront/pkg/tokens"
)

// Config is the complete process configuration, bound to flags/env by
// process.Bind (spec.md §9's twelve-factor ambient stack).
type Config struct {
	Server struct {
		Address        string `default:":8080" usage:"address to listen for HTTP requests on"`
		MetricsAddress string `default:":8081" usage:"address to serve /metrics on"`
	}

	Identity struct {
		Address string `default:"" usage:"identity service grpc address"`
	}

	Metadata struct {
		Address      string        `default:"" usage:"metadata service grpc address"`
		RedisAddress string        `default:"" usage:"redis address for the metadata hot-entry cache"`
		CacheTTL     time.Duration `default:"2s" usage:"metadata cache entry lifetime"`
		MaxRetries   int           `default:"2" usage:"metadata rpc retries on NoDatabasePeersError"`
		RetryBackoff time.Duration `default:"50ms" usage:"backoff between metadata rpc retries"`
	}

	Picker struct {
		Interval           time.Duration `default:"30s" usage:"storage-node inventory refresh interval"`
		UtilizationCeiling uint32        `default:"90" usage:"percent-used ceiling above which a node is excluded"`
		Lag                time.Duration `default:"1h" usage:"max age of a node's last report before it is excluded"`
		MultiDC            bool          `default:"false" usage:"require selected tuples to span multiple datacenters"`
		IgnoreSize         bool          `default:"false" usage:"skip the available-space lower bound"`
	}

	Sharks struct {
		DialTimeout  time.Duration `default:"5s" usage:"shark connection dial timeout"`
		RequestIdle  time.Duration `default:"30s" usage:"shark request idle timeout"`
		MaxIdleConns int           `default:"100" usage:"max idle connections held open per shark"`
	}

	MPU struct {
		MinCopies   int   `default:"1" usage:"minimum durability-level accepted at upload create"`
		MaxCopies   int   `default:"9" usage:"maximum durability-level accepted at upload create"`
		MinPartSize int64 `default:"5242880" usage:"minimum size of a non-final committed part, in bytes"`
	}

	Tokens struct {
		Salt   string        `default:"" usage:"delegation token pbkdf2 salt"`
		Key    string        `default:"" usage:"delegation token encryption key material"`
		IV     string        `default:"" usage:"delegation token AES-CBC initialization vector"`
		MaxAge time.Duration `default:"168h" usage:"maximum age of an accepted delegation token"`
	}

	AllowMpuDeletesParam string `default:"allowMpuDeletes" usage:"query parameter an operator sets to bypass MPU delete protection"`
}

func main() {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:   "mantafront",
		Short: "Manta-compatible object storage front end",
	}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	process.Bind(runCmd, &cfg)
	rootCmd.AddCommand(runCmd)

	process.Exec(rootCmd)
}

func run(ctx context.Context, cfg Config) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	identityConn, err := grpc.Dial(cfg.Identity.Address, grpc.WithInsecure())
	if err != nil {
		return fmt.Errorf("dialing identity service: %w", err)
	}
	defer func() { _ = identityConn.Close() }()
	identityRPC := pb.NewIdentityServiceClient(identityConn)

	metadataConn, err := grpc.Dial(cfg.Metadata.Address, grpc.WithInsecure())
	if err != nil {
		return fmt.Errorf("dialing metadata service: %w", err)
	}
	defer func() { _ = metadataConn.Close() }()
	metadataRPC := pb.NewMetadataServiceClient(metadataConn)

	var cache *redis.Client
	if cfg.Metadata.RedisAddress != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.Metadata.RedisAddress})
		defer func() { _ = cache.Close() }()
	}

	identity := identityclient.New(log.Named("identity"), identityRPC)
	metadataClient := metadata.New(log.Named("metadata"), metadataRPC, cache, metadata.Config{
		CacheTTL:     cfg.Metadata.CacheTTL,
		MaxRetries:   cfg.Metadata.MaxRetries,
		RetryBackoff: cfg.Metadata.RetryBackoff,
	})

	nodePicker := picker.New(log.Named("picker"), metadataRPC, picker.Config{
		Interval:           cfg.Picker.Interval,
		UtilizationCeiling: cfg.Picker.UtilizationCeiling,
		Lag:                cfg.Picker.Lag,
		MultiDC:            cfg.Picker.MultiDC,
		IgnoreSize:         cfg.Picker.IgnoreSize,
	}, time.Now().UnixNano())
	if err := nodePicker.Refresh(ctx); err != nil {
		log.Warn("initial picker refresh failed, starting with empty inventory", zap.Error(err))
	}
	go nodePicker.RunRefreshLoop(ctx)

	sharkClient := sharks.New(log.Named("sharks"), sharks.Config{
		DialTimeout:  cfg.Sharks.DialTimeout,
		RequestIdle:  cfg.Sharks.RequestIdle,
		MaxIdleConns: cfg.Sharks.MaxIdleConns,
	})

	mpuManager := mpu.New(metadataClient, mpu.Config{
		MinCopies:   cfg.MPU.MinCopies,
		MaxCopies:   cfg.MPU.MaxCopies,
		MinPartSize: cfg.MPU.MinPartSize,
	}, nil, nil)

	tokenCfg := tokens.Config{
		Salt:   []byte(cfg.Tokens.Salt),
		Key:    []byte(cfg.Tokens.Key),
		IV:     []byte(cfg.Tokens.IV),
		MaxAge: cfg.Tokens.MaxAge,
	}

	pipeline := authpipeline.New(identity, tokenCfg, tokenCfg, nil)
	evaluator := authz.New(log.Named("authz"), identityRPC)

	var metadataChainClient chain.MetadataClient = metadataClient
	var pickerChainClient chain.Picker = nodePicker

	handler := routes.New(&routes.Server{
		Log:                   log.Named("routes"),
		Pipeline:              pipeline,
		Authz:                 evaluator,
		Metadata:              metadataChainClient,
		Picker:                pickerChainClient,
		Sharks:                sharkClient,
		MPU:                   mpuManager,
		Tokens:                tokenCfg,
		AllowMpuDeletesParam:  cfg.AllowMpuDeletesParam,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- serveHTTP(cfg.Server.Address, "front end", handler, log) }()
	go func() { errCh <- serveHTTP(cfg.Server.MetricsAddress, "metrics", metricsHandler(), log) }()

	return <-errCh
}

func serveHTTP(addr, name string, handler http.Handler, log *zap.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening for %s on %s: %w", name, addr, err)
	}
	log.Info("listening", zap.String("server", name), zap.String("address", addr))
	server := &http.Server{Handler: handler}
	return server.Serve(listener)
}

// metricsHandler exposes monkit's in-process stat registry as plain text,
// one "key field value" line per sample (spec.md §9's metrics surface).
func metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monkit.Default.Stats(func(key monkit.SeriesKey, field string, val float64) {
			fmt.Fprintf(w, "%s %s %v\n", key.String(), field, val)
		})
	}
}
