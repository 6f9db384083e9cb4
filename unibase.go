package unibase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/unibase/blobstore"
	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/docstore"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/index/flat"
	"github.com/hupe1980/unibase/index/hnsw"
	"github.com/hupe1980/unibase/lock"
	"github.com/hupe1980/unibase/model"
	"github.com/hupe1980/unibase/persistence"
	"github.com/hupe1980/unibase/resource"
)

// Unibase binds a document store, one nearest-neighbor index per embedding
// field and the snapshot manager of a workspace.
//
// Reads (Search, GetByID, NumDocs) run concurrently; mutations and Persist
// are exclusive.
type Unibase struct {
	mu sync.RWMutex

	workspace string
	opts      options
	backend   Backend
	metric    distance.Metric

	docs    *docstore.Store
	indexes map[string]index.Index

	locker  lock.Locker
	persist *persistence.Manager
	rc      *resource.Controller
	memory  int64 // bytes charged to rc

	logger  *Logger
	metrics MetricsCollector
	closed  bool
}

// IndexReport describes the outcome of Index.
type IndexReport struct {
	// Inserted lists the ids of new documents, generated ids included.
	Inserted []string
	// Replaced lists the ids that already existed and were replaced.
	Replaced []string
	// Rejected lists the documents that were not applied.
	Rejected []Rejection
}

// MutationReport describes the outcome of Update and Delete.
type MutationReport struct {
	// Applied lists the ids that were updated or deleted.
	Applied []string
	// NotFound lists the ids that did not exist. They are not errors.
	NotFound []string
	// Rejected lists updates that did not fit the schema.
	Rejected []Rejection
}

// Open opens the workspace, restoring its snapshot if there is one.
//
// By default the workspace is a local directory that is created on demand
// and locked against other instances. A corrupt snapshot makes Open fail
// with ErrWorkspaceCorrupt rather than start empty.
func Open(ctx context.Context, workspace string, optFns ...Option) (*Unibase, error) {
	o := applyOptions(optFns)

	if o.backend != BackendFlat && o.backend != BackendHNSW {
		return nil, fmt.Errorf("unibase: unknown backend %v", o.backend)
	}
	if _, err := distance.Provider(o.metric); err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		if workspace == "" {
			return nil, errors.New("unibase: workspace path required")
		}
		store = blobstore.NewLocalStore(workspace)
	}

	locker := o.locker
	switch {
	case o.noLock:
		locker = lock.Noop{}
	case locker == nil:
		if ls, ok := store.(*blobstore.LocalStore); ok {
			locker = lock.NewFileLock(ls.Root())
		} else {
			locker = lock.Noop{}
		}
	}
	if err := locker.Lock(ctx); err != nil {
		return nil, translateError("", err)
	}

	rc := resource.NewController(o.resources)
	u := &Unibase{
		workspace: workspace,
		opts:      o,
		backend:   o.backend,
		metric:    o.metric,
		docs:      docstore.New(),
		indexes:   make(map[string]index.Index),
		locker:    locker,
		rc:        rc,
		persist: persistence.NewManager(store, func(po *persistence.Options) {
			po.Compression = o.compression
			po.Retain = o.retain
			po.Resources = rc
		}),
		logger:  o.logger.WithWorkspace(workspace),
		metrics: o.metricsCollector,
	}

	if err := u.restore(ctx); err != nil {
		u.logger.LogRestore(ctx, 0, 0, err)
		_ = locker.Unlock(context.WithoutCancel(ctx))
		return nil, err
	}
	return u, nil
}

// Index inserts docs. A document whose id already exists replaces the
// stored one; a document without id gets a generated one.
//
// Documents that do not fit the schema are listed in the report and the
// rest are applied. Index returns an error only if every document was
// rejected.
func (u *Unibase) Index(ctx context.Context, docs []model.Document) (IndexReport, error) {
	start := time.Now()

	u.mu.Lock()
	defer u.mu.Unlock()

	var report IndexReport
	if u.closed {
		return report, ErrClosed
	}

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}

		replaced, err := u.apply(doc)
		if err != nil {
			r := Rejection{Position: i, ID: doc.ID, Err: err}
			u.logger.LogReject(ctx, "index", r)
			report.Rejected = append(report.Rejected, r)
			continue
		}
		if replaced {
			u.logger.LogReplace(ctx, doc.ID)
			report.Replaced = append(report.Replaced, doc.ID)
		} else {
			report.Inserted = append(report.Inserted, doc.ID)
		}
	}

	u.logger.LogIndex(ctx, len(report.Inserted), len(report.Replaced), len(report.Rejected), time.Since(start))
	u.metrics.RecordIndex(len(docs), len(report.Rejected), time.Since(start))

	if len(docs) > 0 && len(report.Rejected) == len(docs) {
		return report, batchError("index", report.Rejected)
	}
	return report, nil
}

// Update merges each document into the stored document with the same id:
// given fields and embeddings overwrite, the rest is kept. The vectors are
// reinserted even when unchanged. Unknown ids are reported in NotFound.
func (u *Unibase) Update(ctx context.Context, docs []model.Document) (MutationReport, error) {
	start := time.Now()

	u.mu.Lock()
	defer u.mu.Unlock()

	var report MutationReport
	if u.closed {
		return report, ErrClosed
	}

	for i, patch := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		current, ok := u.docs.Get(patch.ID)
		if !ok {
			report.NotFound = append(report.NotFound, patch.ID)
			continue
		}

		if _, err := u.apply(current.Merge(patch)); err != nil {
			r := Rejection{Position: i, ID: patch.ID, Err: err}
			u.logger.LogReject(ctx, "update", r)
			report.Rejected = append(report.Rejected, r)
			continue
		}
		report.Applied = append(report.Applied, patch.ID)
	}

	u.logger.LogUpdate(ctx, len(report.Applied), len(report.NotFound), len(report.Rejected))
	u.metrics.RecordUpdate(len(docs), len(report.NotFound), time.Since(start))

	if len(docs) > 0 && len(report.Rejected) == len(docs) {
		return report, batchError("update", report.Rejected)
	}
	return report, nil
}

// Delete removes the documents with the ids of docs; the rest of each
// document is ignored. Unknown ids are reported in NotFound.
func (u *Unibase) Delete(ctx context.Context, docs []model.Document) (MutationReport, error) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return u.DeleteByID(ctx, ids...)
}

// DeleteByID removes the documents with the given ids.
func (u *Unibase) DeleteByID(ctx context.Context, ids ...string) (MutationReport, error) {
	start := time.Now()

	u.mu.Lock()
	defer u.mu.Unlock()

	var report MutationReport
	if u.closed {
		return report, ErrClosed
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if u.remove(id) {
			report.Applied = append(report.Applied, id)
		} else {
			report.NotFound = append(report.NotFound, id)
		}
	}

	u.logger.LogDelete(ctx, len(report.Applied), len(report.NotFound))
	u.metrics.RecordDelete(len(ids), len(report.NotFound), time.Since(start))
	return report, nil
}

// GetByID returns the document stored under id. A missing id, or a closed
// instance, yields false.
func (u *Unibase) GetByID(id string) (model.Document, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.closed {
		return model.Document{}, false
	}
	return u.docs.Get(id)
}

// NumDocs returns the number of live documents, or 0 once the instance is
// closed.
func (u *Unibase) NumDocs() int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.closed {
		return 0
	}
	return u.docs.Count()
}

// Fields returns the embedding fields of the schema, sorted.
func (u *Unibase) Fields() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.docs.Fields()
}

// Backend returns the active backend.
func (u *Unibase) Backend() Backend { return u.backend }

// Metric returns the active distance metric.
func (u *Unibase) Metric() distance.Metric { return u.metric }

// Stats describes the state of an instance.
type Stats struct {
	Workspace   string
	Backend     string
	Metric      string
	NumDocs     int
	Rows        int
	Dimensions  map[string]int
	MemoryBytes int64

	// Graphs holds per-field graph statistics for the HNSW backend.
	Graphs map[string]hnsw.Stats
}

// Stats returns a snapshot of the instance state.
func (u *Unibase) Stats() Stats {
	u.mu.RLock()
	defer u.mu.RUnlock()

	s := Stats{
		Workspace:   u.workspace,
		Backend:     u.backend.String(),
		Metric:      u.metric.String(),
		NumDocs:     u.docs.Count(),
		Rows:        u.docs.Rows(),
		Dimensions:  make(map[string]int),
		MemoryBytes: u.memory,
	}
	for _, field := range u.docs.Fields() {
		s.Dimensions[field], _ = u.docs.Dimension(field)
		if g, ok := u.indexes[field].(*hnsw.HNSW); ok {
			if s.Graphs == nil {
				s.Graphs = make(map[string]hnsw.Stats)
			}
			s.Graphs[field] = g.Stats()
		}
	}
	return s
}

// Close releases the workspace lock. It does not persist; call Persist
// first to keep unsaved changes.
func (u *Unibase) Close() error {
	if u == nil {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	u.rc.ReleaseMemory(u.memory)
	u.memory = 0

	return u.locker.Unlock(context.Background())
}

// apply validates doc and stores it in the document store and every field
// index. It reports whether an existing document was replaced.
func (u *Unibase) apply(doc model.Document) (bool, error) {
	if err := u.docs.Validate(doc); err != nil {
		return false, translateError("", err)
	}
	for _, field := range doc.EmbeddingFields() {
		vec := doc.Embeddings[field]
		if !distance.IsFinite(vec) {
			return false, translateError(field, index.ErrNonFinite)
		}
		if u.metric.NormalizesVectors() && distance.IsZero(vec) {
			return false, translateError(field, index.ErrZeroVector)
		}
	}

	_, exists := u.docs.RowOf(doc.ID)
	var cost int64
	if !exists {
		cost = documentCost(doc)
		if !u.rc.TryAcquireMemory(cost) {
			return false, fmt.Errorf("%w: document needs %d bytes, %d in use", ErrCapacity, cost, u.rc.MemoryUsage())
		}
	}

	row, replaced, err := u.docs.InsertOrReplace(doc)
	if err != nil {
		u.rc.ReleaseMemory(cost)
		return false, translateError("", err)
	}
	u.memory += cost

	for _, field := range doc.EmbeddingFields() {
		vec := doc.Embeddings[field]

		idx, err := u.indexFor(field, len(vec))
		if err == nil {
			if replaced {
				err = idx.Replace(row, vec)
			} else {
				err = idx.Add(row, vec)
			}
		}
		if err != nil {
			if !replaced {
				u.remove(doc.ID)
			}
			return false, translateError(field, err)
		}
	}
	return replaced, nil
}

// remove drops id from the store and every index.
func (u *Unibase) remove(id string) bool {
	doc, row, ok := u.docs.Remove(id)
	if !ok {
		return false
	}
	for _, idx := range u.indexes {
		idx.Remove(row)
	}

	cost := documentCost(doc)
	u.rc.ReleaseMemory(cost)
	u.memory -= cost
	return true
}

// indexFor returns the index of field, creating it on first use.
func (u *Unibase) indexFor(field string, dim int) (index.Index, error) {
	if idx, ok := u.indexes[field]; ok {
		return idx, nil
	}
	idx, err := u.newIndex(dim)
	if err != nil {
		return nil, err
	}
	u.indexes[field] = idx
	return idx, nil
}

func (u *Unibase) newIndex(dim int) (index.Index, error) {
	switch u.backend {
	case BackendFlat:
		f, err := flat.New(dim, func(o *flat.Options) {
			o.Metric = u.metric
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendHNSW:
		optFns := append(slices.Clone(u.opts.hnswOptions), func(o *hnsw.Options) {
			o.Metric = u.metric
		})
		h, err := hnsw.New(dim, optFns...)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unibase: unknown backend %v", u.backend)
	}
}

// documentCost approximates the memory held for doc: its vectors in the
// store and in the index, plus the id and bookkeeping.
func documentCost(doc model.Document) int64 {
	n := int64(len(doc.ID)) + 64
	for _, v := range doc.Embeddings {
		n += 8 * int64(len(v))
	}
	return n
}
