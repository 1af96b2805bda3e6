package core

// IndexType selects the in-memory index implementation. SkipList is
// currently the only value; the name is kept from the original design even
// though the concrete realization here is an ordered B-tree (see index.go).
type IndexType int8

const (
	IndexSkipList IndexType = iota
)

// Options configures an Engine at Open time.
type Options struct {
	// DataFileSize rotates the active segment once appending a record
	// would exceed this many bytes.
	DataFileSize int64

	// SyncWrites fsyncs the active segment after every Put/Delete.
	SyncWrites bool

	// BytesPerSync fsyncs the active segment once the unsynced-byte
	// counter crosses this many bytes. Zero disables the counter-based sync.
	BytesPerSync int64

	// IndexType selects the ordered index implementation.
	IndexType IndexType

	// MmapAtStartup opens sealed segments with the memory-mapped IO
	// back-end instead of buffered positioned IO; they stay memory-mapped
	// after recovery, for as long as the DB is open.
	MmapAtStartup bool

	// DataFileMergeRatio is the fraction (0..1) of reclaimable bytes across
	// sealed segments that must be crossed before a merge proceeds.
	DataFileMergeRatio float64

	// MergeEnabled turns on background auto-merge triggered from Put.
	MergeEnabled bool

	// MergeSegmentThreshold is the number of sealed segments that triggers
	// an auto-merge attempt.
	MergeSegmentThreshold int
}

// Option mutates an Engine at Open time.
type Option func(*DB)

func WithDataFileSize(n int64) Option {
	return func(db *DB) { db.opts.DataFileSize = n }
}

func WithSyncWrites(b bool) Option {
	return func(db *DB) { db.opts.SyncWrites = b }
}

func WithBytesPerSync(n int64) Option {
	return func(db *DB) { db.opts.BytesPerSync = n }
}

func WithMmapAtStartup(b bool) Option {
	return func(db *DB) { db.opts.MmapAtStartup = b }
}

func WithDataFileMergeRatio(r float64) Option {
	return func(db *DB) { db.opts.DataFileMergeRatio = r }
}

func WithMergeEnabled(b bool) Option {
	return func(db *DB) { db.opts.MergeEnabled = b }
}

func WithMergeSegmentThreshold(n int) Option {
	return func(db *DB) { db.opts.MergeSegmentThreshold = n }
}

func defaultOptions() Options {
	return Options{
		DataFileSize:          256 * 1024 * 1024,
		SyncWrites:            false,
		BytesPerSync:          0,
		IndexType:             IndexSkipList,
		MmapAtStartup:         false,
		DataFileMergeRatio:    0.5,
		MergeEnabled:          true,
		MergeSegmentThreshold: 8,
	}
}

// IteratorOptions configures an index iterator: a key-prefix filter and
// traversal direction.
type IteratorOptions struct {
	Prefix  []byte
	Reverse bool
}
