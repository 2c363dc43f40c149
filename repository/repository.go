// Package repository implements the blob-store-backed snapshot repository:
// a content-addressed, incremental, multi-snapshot archival engine. One
// instance owns all writes to its repository's blob namespace; readers are
// concurrent and lock-free. Snapshot scheduling across the cluster is an
// external concern; this engine executes instructions for one repository on
// one node.
//
// Blob layout under the store root:
//
//	index-<N>                    repository catalog, generational
//	index.latest                 8-byte big-endian generation pointer
//	incompatible-snapshots       ids of snapshots this version cannot read
//	snap-<uuid>.dat              per-snapshot info
//	meta-<uuid>.dat              per-snapshot global cluster metadata
//	indices/<indexId>/meta-<uuid>.dat
//	indices/<indexId>/<shard>/snap-<uuid>.dat
//	indices/<indexId>/<shard>/index-<gen>
//	indices/<indexId>/<shard>/__<uuid>[.part<i>]
package repository

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/INLOpen/nexusvault/async"
	"github.com/INLOpen/nexusvault/blob"
	"github.com/INLOpen/nexusvault/codec"
	"github.com/INLOpen/nexusvault/compressors"
	"github.com/INLOpen/nexusvault/config"
	"github.com/INLOpen/nexusvault/core"
	"github.com/INLOpen/nexusvault/stream"
)

const (
	snapshotPrefix            = "snap-"
	indexFilePrefix           = "index-"
	indexLatestBlob           = "index.latest"
	testsPrefix               = "tests-"
	incompatibleSnapshotsBlob = "incompatible-snapshots"

	metadataNameFormat   = "meta-%s.dat"
	snapshotNameFormat   = "snap-%s.dat"
	shardIndexNameFormat = "index-%s"

	metadataCodec      = "metadata"
	indexMetadataCodec = "index-metadata"
	snapshotCodec      = "snapshot"
	shardIndexCodec    = "snapshots"

	indicesDir = "indices"
)

// Options carries the host-provided collaborators.
type Options struct {
	// CreateStore builds the underlying blob store. Called at most once,
	// lazily, on first use after Start.
	CreateStore func() (blob.Store, error)

	Logger *slog.Logger
	Tracer trace.Tracer

	// SnapshotPool runs CPU-bounded snapshot work, GenericPool blocking
	// blob-store calls. Nil pools default to small bounded pools.
	SnapshotPool async.Executor
	GenericPool  async.Executor

	// Clock returns wall time in millis; tests override it.
	Clock func() int64
}

// Repository is one repository instance on one node.
type Repository struct {
	settings *config.Settings
	logger   *slog.Logger
	tracer   trace.Tracer
	snapPool async.Executor
	genPool  async.Executor
	clock    func() int64

	createStore func() (blob.Store, error)

	mu      sync.Mutex
	store   blob.Store
	root    blob.Container
	started bool
	closed  bool

	snapshotLimiter *rate.Limiter
	restoreLimiter  *rate.Limiter

	// Throttle pressure counters, in nanoseconds slept.
	SnapshotThrottledNanos atomic.Int64
	RestoreThrottledNanos  atomic.Int64

	globalMetaFormat    *codec.Format[core.ClusterMetadata]
	indexMetaFormat     *codec.Format[core.IndexMetadata]
	snapshotFormat      *codec.Format[core.SnapshotInfo]
	shardSnapshotFormat *codec.Format[core.ShardSnapshot]
	shardIndexFormat    *codec.Format[core.ShardSnapshots]
}

// New wires a repository from validated settings. Start must be called
// before any operation.
func New(settings *config.Settings, opts Options) (*Repository, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if opts.CreateStore == nil {
		return nil, fmt.Errorf("repository %s: CreateStore is required", settings.Name)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("nexusvault")
	}
	snapPool := opts.SnapshotPool
	if snapPool == nil {
		snapPool = async.NewPool(4)
	}
	genPool := opts.GenericPool
	if genPool == nil {
		genPool = async.NewPool(4)
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}

	var compressor compressors.Compressor = &compressors.NoCompression{}
	if settings.CompressEnabled() {
		var err error
		compressor, err = compressors.ForName(settings.CompressionCodec)
		if err != nil {
			return nil, err
		}
	}

	r := &Repository{
		settings:    settings,
		logger:      logger.With("component", "Repository", "repository", settings.Name),
		tracer:      tracer,
		snapPool:    snapPool,
		genPool:     genPool,
		clock:       clock,
		createStore: opts.CreateStore,

		snapshotLimiter: stream.NewLimiter(settings.MaxSnapshotBytesPerSec),
		restoreLimiter:  stream.NewLimiter(settings.MaxRestoreBytesPerSec),

		globalMetaFormat:    codec.NewFormat[core.ClusterMetadata](metadataCodec, metadataNameFormat, compressor),
		indexMetaFormat:     codec.NewFormat[core.IndexMetadata](indexMetadataCodec, metadataNameFormat, compressor),
		snapshotFormat:      codec.NewFormat[core.SnapshotInfo](snapshotCodec, snapshotNameFormat, compressor),
		shardSnapshotFormat: codec.NewFormat[core.ShardSnapshot](snapshotCodec, snapshotNameFormat, compressor),
		shardIndexFormat:    codec.NewFormat[core.ShardSnapshots](shardIndexCodec, shardIndexNameFormat, compressor),
	}
	return r, nil
}

// Name returns the repository name.
func (r *Repository) Name() string { return r.settings.Name }

// ReadOnly reports whether writes are disabled.
func (r *Repository) ReadOnly() bool { return r.settings.ReadOnly }

// ChunkSize returns the maximum bytes per data-blob part, zero for
// unchunked.
func (r *Repository) ChunkSize() int64 { return r.settings.ChunkSizeBytes }

// Start validates the chunk size and marks the repository usable. The blob
// store itself is created lazily on first access.
func (r *Repository) Start() error {
	if r.settings.ChunkSizeBytes < 0 {
		return fmt.Errorf("the chunk size cannot be negative: [%d]", r.settings.ChunkSizeBytes)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

// Close closes the blob store exactly once.
func (r *Repository) Close() {
	r.mu.Lock()
	store := r.store
	r.store = nil
	r.root = nil
	r.closed = true
	r.mu.Unlock()
	if store != nil {
		if err := store.Close(); err != nil {
			r.logger.Warn("cannot close blob store", "error", err)
		}
	}
}

// blobStore returns the lazily-created shared store handle.
func (r *Repository) blobStore() (blob.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		return r.store, nil
	}
	if !r.started || r.closed {
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "repository is not in started state"}
	}
	store, err := r.createStore()
	if err != nil {
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "cannot create blob store", Err: err}
	}
	r.store = store
	return store, nil
}

// rootContainer returns the container at the repository base path.
func (r *Repository) rootContainer() (blob.Container, error) {
	r.mu.Lock()
	if r.root != nil {
		c := r.root
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	store, err := r.blobStore()
	if err != nil {
		return nil, err
	}
	c, err := store.Container("")
	if err != nil {
		return nil, &core.RepositoryError{Repository: r.settings.Name, Message: "cannot open root container", Err: err}
	}
	r.mu.Lock()
	if r.root == nil {
		r.root = c
	}
	c = r.root
	r.mu.Unlock()
	return c, nil
}

func (r *Repository) indexContainer(index core.IndexID) (blob.Container, error) {
	store, err := r.blobStore()
	if err != nil {
		return nil, err
	}
	return store.Container(indicesDir + "/" + index.ID)
}

func (r *Repository) shardContainer(index core.IndexID, shardID int) (blob.Container, error) {
	store, err := r.blobStore()
	if err != nil {
		return nil, err
	}
	return store.Container(fmt.Sprintf("%s/%s/%d", indicesDir, index.ID, shardID))
}

func (r *Repository) String() string {
	return fmt.Sprintf("Repository[%s]", r.settings.Name)
}
