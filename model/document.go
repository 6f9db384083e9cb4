package model

import (
	"maps"
	"slices"
	"sort"
)

// DefaultEmbeddingField is the embedding name used by helpers that deal with
// single-vector documents.
const DefaultEmbeddingField = "embedding"

// Document is a record stored in a unibase workspace.
//
// ID is unique within a workspace; an empty ID asks the engine to generate
// one. Fields holds scalar and text values. Embeddings maps a field name to
// a fixed-dimension vector.
type Document struct {
	ID         string               `json:"id"`
	Fields     map[string]any       `json:"fields,omitempty"`
	Embeddings map[string][]float32 `json:"embeddings,omitempty"`
}

// Field returns the scalar field name, if present.
func (d Document) Field(name string) (any, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// Text returns the "text" field as a string, or "" if it is absent or not a string.
func (d Document) Text() string {
	s, _ := d.Fields["text"].(string)
	return s
}

// Embedding returns the vector stored under field, if present.
func (d Document) Embedding(field string) ([]float32, bool) {
	v, ok := d.Embeddings[field]
	return v, ok
}

// EmbeddingFields returns the names of d's embeddings in sorted order.
func (d Document) EmbeddingFields() []string {
	names := make([]string, 0, len(d.Embeddings))
	for name := range d.Embeddings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the document's maps and vectors. Field values
// themselves are copied shallowly.
func (d Document) Clone() Document {
	out := Document{ID: d.ID}
	if d.Fields != nil {
		out.Fields = maps.Clone(d.Fields)
	}
	if d.Embeddings != nil {
		out.Embeddings = make(map[string][]float32, len(d.Embeddings))
		for k, v := range d.Embeddings {
			out.Embeddings[k] = slices.Clone(v)
		}
	}
	return out
}

// Merge returns a copy of d overlaid with the fields and embeddings of
// patch. Keys absent from patch keep their value from d.
func (d Document) Merge(patch Document) Document {
	out := d.Clone()
	if len(patch.Fields) > 0 && out.Fields == nil {
		out.Fields = make(map[string]any, len(patch.Fields))
	}
	for k, v := range patch.Fields {
		out.Fields[k] = v
	}
	if len(patch.Embeddings) > 0 && out.Embeddings == nil {
		out.Embeddings = make(map[string][]float32, len(patch.Embeddings))
	}
	for k, v := range patch.Embeddings {
		out.Embeddings[k] = slices.Clone(v)
	}
	return out
}

// Builder assembles a Document.
type Builder struct {
	doc Document
}

// NewDocument starts a document with the given id.
func NewDocument(id string) *Builder {
	return &Builder{doc: Document{ID: id}}
}

// WithField sets a scalar field.
func (b *Builder) WithField(name string, value any) *Builder {
	if b.doc.Fields == nil {
		b.doc.Fields = make(map[string]any)
	}
	b.doc.Fields[name] = value
	return b
}

// WithText sets the "text" field.
func (b *Builder) WithText(text string) *Builder {
	return b.WithField("text", text)
}

// WithEmbedding sets the vector stored under field.
func (b *Builder) WithEmbedding(field string, vec []float32) *Builder {
	if b.doc.Embeddings == nil {
		b.doc.Embeddings = make(map[string][]float32)
	}
	b.doc.Embeddings[field] = vec
	return b
}

// Build returns the assembled document.
func (b *Builder) Build() Document {
	return b.doc
}

// Match is a stored document returned by a search.
//
// Distance is the backend's lower-is-better value (0 for an identical
// vector under cosine and L2). Score is the matching higher-is-better
// similarity (1 for an identical vector under cosine and L2).
type Match struct {
	Document
	Distance float32 `json:"distance"`
	Score    float32 `json:"score"`
}

// Result holds the ranked matches for one query document.
type Result struct {
	Query   Document `json:"query"`
	Matches []Match  `json:"matches"`
}

// IDs returns the ids of r's matches in rank order.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		ids[i] = m.ID
	}
	return ids
}
