// Package model defines the document types exchanged with unibase.
//
// # Data Types
//
//   - Document: an id, scalar fields and one or more named embeddings
//   - Match: a stored document returned by a search, with its distance and score
//   - Result: the ranked matches for one query document
//
// # Document Builder
//
// Use the fluent API to construct documents:
//
//	doc := model.NewDocument("doc-1").
//	    WithField("text", "hello").
//	    WithEmbedding("embedding", vec).
//	    Build()
package model
