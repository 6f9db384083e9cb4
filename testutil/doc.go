// Package testutil provides testing utilities for unibase.
//
// This package is intended for use in tests and examples only.
// It provides helpers for generating random vectors and documents,
// computing exact nearest neighbors and verifying search recall.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(1000, 128) // uniform [0, 1)
//	docs := rng.Documents(2000, 128)      // random text + embedding
//
// # Exact Search (Ground Truth)
//
//	want := testutil.ExactTopK(vecs, query, k, distance.SquaredL2)
//
// # Recall Verification
//
//	recall := testutil.Recall(got, want)
package testutil
