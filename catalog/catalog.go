package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hupe1980/kvsearch/codec"
	"github.com/hupe1980/kvsearch/internal/compress"
	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/resource"
	"github.com/hupe1980/kvsearch/schema"
)

const (
	tablePrefix = "tables/"
	tableSuffix = ".kvs"
)

var validName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// Descriptor is the persisted definition of a table.
type Descriptor struct {
	Name   string           `json:"name"`
	Layout partition.Layout `json:"layout"`
	// Partitioner names the token function of the layout. Empty means xxhash.
	Partitioner string          `json:"partitioner,omitempty"`
	Schema      *schema.Builder `json:"schema"`
	Shards      int             `json:"shards"`
	Replication int             `json:"replication"`
	UpdatedAt   time.Time       `json:"updated_at"`

	// Version is the stored version the descriptor was loaded at, 0 for a
	// table that was never saved.
	Version uint64 `json:"-"`
}

// Validate checks the descriptor and compiles its schema.
func (d *Descriptor) Validate() (*schema.Schema, error) {
	if !validName.MatchString(d.Name) {
		return nil, fmt.Errorf("catalog: invalid table name %q", d.Name)
	}
	if err := d.Layout.Validate(); err != nil {
		return nil, err
	}
	if d.Shards < 1 {
		return nil, fmt.Errorf("catalog: table %s needs at least one shard", d.Name)
	}
	if d.Replication < 1 || d.Replication > d.Shards {
		return nil, fmt.Errorf("catalog: replication %d of table %s must be in [1, %d]", d.Replication, d.Name, d.Shards)
	}
	if d.Schema == nil {
		return nil, fmt.Errorf("catalog: table %s has no schema", d.Name)
	}
	return d.Schema.Build(d.Name)
}

// Options configures a Catalog.
type Options struct {
	// Codec encodes descriptors. Documents written with other built-in
	// codecs remain readable.
	Codec codec.Codec
	// Compression of written documents.
	Compression compress.Type
	// Controller throttles document transfers.
	Controller *resource.Controller
	Logger     *zap.Logger
	// Partitioners resolves the partitioner names of loaded descriptors.
	// "xxhash" is always known.
	Partitioners map[string]partition.Partitioner
}

// DefaultOptions contains default options for catalogs.
var DefaultOptions = Options{
	Codec:       codec.Default,
	Compression: compress.ZSTD,
}

// Catalog stores table descriptors in a Store.
type Catalog struct {
	store Store
	opts  Options

	// mu serializes version checks on stores without atomic commits.
	mu sync.Mutex
}

// New creates a catalog on top of store.
func New(store Store, optFns ...func(o *Options)) *Catalog {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Catalog{store: store, opts: opts}
}

func objectName(table string) string { return tablePrefix + table + tableSuffix }

// Save validates d and stores it. d.Version must be the currently stored
// version; on success it is advanced to the new version. A concurrent
// writer makes Save fail with ErrConflict.
func (c *Catalog) Save(ctx context.Context, d *Descriptor) error {
	if _, err := d.Validate(); err != nil {
		return err
	}
	if d.Partitioner == "" && d.Layout.Partitioner != nil {
		d.Partitioner = d.Layout.Partitioner.Name()
	}

	saved := *d
	saved.UpdatedAt = time.Now().UTC()
	data, err := encodeFrame(c.opts.Codec, c.opts.Compression, d.Version+1, &saved)
	if err != nil {
		return err
	}
	if err := c.opts.Controller.AcquireIO(ctx, len(data)); err != nil {
		return err
	}

	name := objectName(d.Name)
	if cm, ok := c.store.(Committer); ok {
		err = cm.Commit(ctx, name, d.Version, data)
	} else {
		err = c.putChecked(ctx, name, d.Version, data)
	}
	if err != nil {
		return err
	}

	d.Version++
	d.UpdatedAt = saved.UpdatedAt
	c.opts.Logger.Info("table descriptor saved",
		zap.String("table", d.Name),
		zap.Uint64("version", d.Version),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (c *Catalog) putChecked(ctx context.Context, name string, prev uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.read(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := checkVersion(current, prev); err != nil {
		return err
	}
	return c.store.Put(ctx, name, data)
}

func (c *Catalog) read(ctx context.Context, name string) ([]byte, error) {
	rc, err := c.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return resource.ReadAll(ctx, rc, c.opts.Controller)
}

// Load returns the stored descriptor of table.
func (c *Catalog) Load(ctx context.Context, table string) (*Descriptor, error) {
	data, err := c.read(ctx, objectName(table))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("catalog: table %s: %w", table, ErrNotFound)
		}
		return nil, err
	}

	d := &Descriptor{}
	version, err := decodeFrame(data, d)
	if err != nil {
		return nil, fmt.Errorf("catalog: table %s: %w", table, err)
	}
	d.Version = version

	switch d.Partitioner {
	case "", "xxhash":
		d.Layout.Partitioner = partition.XXHash{}
	default:
		p, ok := c.opts.Partitioners[d.Partitioner]
		if !ok {
			return nil, fmt.Errorf("catalog: table %s: unknown partitioner %q", table, d.Partitioner)
		}
		d.Layout.Partitioner = p
	}
	return d, nil
}

// Delete removes the descriptor of table.
func (c *Catalog) Delete(ctx context.Context, table string) error {
	if err := c.store.Delete(ctx, objectName(table)); err != nil {
		return err
	}
	c.opts.Logger.Info("table descriptor deleted", zap.String("table", table))
	return nil
}

// List returns the names of all stored tables.
func (c *Catalog) List(ctx context.Context) ([]string, error) {
	names, err := c.store.List(ctx, tablePrefix)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasSuffix(n, tableSuffix) {
			continue
		}
		tables = append(tables, strings.TrimSuffix(path.Base(n), tableSuffix))
	}
	return tables, nil
}
