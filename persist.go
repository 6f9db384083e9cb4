package unibase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/docstore"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/model"
	"github.com/hupe1980/unibase/persistence"
)

const documentsSection = "documents"

// Persist writes a snapshot of the current state to the workspace. The
// previous snapshot stays current until the new one is complete.
func (u *Unibase) Persist(ctx context.Context) error {
	start := time.Now()

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return ErrClosed
	}

	man, err := u.save(ctx)
	u.metrics.RecordPersist(time.Since(start), err)
	if err != nil {
		u.logger.LogPersist(ctx, 0, u.docs.Count(), err)
		return err
	}
	u.logger.LogPersist(ctx, man.ID, man.NumDocs, nil)
	return nil
}

func (u *Unibase) save(ctx context.Context) (*persistence.Manifest, error) {
	meta := persistence.Manifest{
		Backend: u.backend.String(),
		Metric:  u.metric.String(),
		Codec:   u.opts.codec.Name(),
		Dims:    make(map[string]int),
		NumDocs: u.docs.Count(),
		Indexes: make(map[string]string),
	}

	sections := []persistence.Section{{
		Name: documentsSection,
		Write: func(w io.Writer) error {
			_, err := u.docs.Save(w, u.opts.codec)
			return err
		},
	}}

	for i, field := range u.docs.Fields() {
		idx, ok := u.indexes[field]
		if !ok {
			return nil, fmt.Errorf("unibase: no index for field %q", field)
		}
		meta.Dims[field] = idx.Dimension()

		name := fmt.Sprintf("index-%03d", i)
		meta.Indexes[field] = name
		sections = append(sections, persistence.Section{
			Name: name,
			Write: func(w io.Writer) error {
				_, err := idx.WriteTo(w)
				return err
			},
		})
	}

	return u.persist.Save(ctx, meta, sections)
}

// restore loads the current snapshot, or prepares an empty instance when
// the workspace has none.
func (u *Unibase) restore(ctx context.Context) error {
	snap, err := u.persist.Load(ctx)
	if errors.Is(err, persistence.ErrNoSnapshot) {
		if err := u.declare(); err != nil {
			return err
		}
		u.logger.LogRestore(ctx, 0, 0, nil)
		return nil
	}
	if err != nil {
		return translateError("", err)
	}

	if err := u.load(snap); err != nil {
		if !errors.Is(err, ErrWorkspaceCorrupt) && !errors.Is(err, ErrSchemaMismatch) && !errors.Is(err, ErrCapacity) {
			err = fmt.Errorf("%w: %w", ErrWorkspaceCorrupt, err)
		}
		return err
	}

	u.logger.LogRestore(ctx, snap.Manifest.ID, u.docs.Count(), nil)
	return nil
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrWorkspaceCorrupt, fmt.Sprintf(format, args...))
}

func (u *Unibase) load(snap *persistence.Snapshot) error {
	man := snap.Manifest

	kind, err := index.ParseKind(man.Backend)
	if err != nil {
		return corruptf("manifest backend: %v", err)
	}
	metric, err := distance.ParseMetric(man.Metric)
	if err != nil {
		return corruptf("manifest metric: %v", err)
	}
	if kind != u.backend || metric != u.metric {
		u.logger.Warn("workspace settings override options",
			"backend", kind.String(),
			"metric", metric.String(),
		)
		u.backend, u.metric = kind, metric
	}

	r, err := snap.Section(documentsSection)
	if err != nil {
		return translateError("", err)
	}
	docs, err := docstore.Load(r)
	if err != nil {
		return fmt.Errorf("%w: documents: %w", ErrWorkspaceCorrupt, err)
	}
	if docs.Count() != man.NumDocs {
		return corruptf("manifest counts %d documents, store holds %d", man.NumDocs, docs.Count())
	}

	dims := make(map[string]int)
	for _, field := range docs.Fields() {
		dims[field], _ = docs.Dimension(field)
	}
	if !maps.Equal(dims, man.Dims) {
		return corruptf("manifest dimensions %v do not match store %v", man.Dims, dims)
	}

	indexes := make(map[string]index.Index, len(dims))
	for field, dim := range dims {
		section, ok := man.Indexes[field]
		if !ok {
			return corruptf("no index for field %q", field)
		}
		r, err := snap.Section(section)
		if err != nil {
			return translateError(field, err)
		}
		idx, err := index.Load(r)
		if err != nil {
			return fmt.Errorf("%w: index %q: %w", ErrWorkspaceCorrupt, field, err)
		}

		switch {
		case idx.Kind() != kind:
			return corruptf("index %q is %v, manifest says %v", field, idx.Kind(), kind)
		case idx.Dimension() != dim:
			return corruptf("index %q has dimension %d, want %d", field, idx.Dimension(), dim)
		case idx.Metric() != metric:
			return corruptf("index %q uses %v, manifest says %v", field, idx.Metric(), metric)
		case idx.Len() != docs.Count():
			return corruptf("index %q holds %d vectors for %d documents", field, idx.Len(), docs.Count())
		}
		indexes[field] = idx
	}

	var cost int64
	docs.Each(func(_ uint32, doc *model.Document) bool {
		cost += documentCost(*doc)
		return true
	})
	if !u.rc.TryAcquireMemory(cost) {
		return fmt.Errorf("%w: snapshot needs %d bytes", ErrCapacity, cost)
	}

	u.docs, u.indexes, u.memory = docs, indexes, cost
	return u.declare()
}

// declare applies WithDimension. Declared fields must agree with a
// restored schema.
func (u *Unibase) declare() error {
	for field, dim := range u.opts.dims {
		if err := u.docs.Declare(field, dim); err != nil {
			return translateError(field, err)
		}
		if _, err := u.indexFor(field, dim); err != nil {
			return err
		}
	}
	return nil
}

// Compact reclaims the space of removed vectors in backends that keep
// tombstones.
func (u *Unibase) Compact(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return ErrClosed
	}
	for _, field := range u.docs.Fields() {
		c, ok := u.indexes[field].(index.Compactor)
		if !ok {
			continue
		}
		if err := c.Compact(ctx); err != nil {
			return fmt.Errorf("unibase: compact %q: %w", field, err)
		}
	}
	return nil
}
