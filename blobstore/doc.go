// Package blobstore provides the storage abstraction behind a unibase
// workspace.
//
// BlobStore is the interface for reading and writing workspace blobs
// (snapshot sections, manifests, the CURRENT pointer).
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a local directory; writes go to a temp file that is
//     fsynced and renamed into place
//   - MemoryStore: process memory, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for writing
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// A blob created with Create must stay invisible until Close succeeds, so
// that a failed snapshot never shadows a valid one.
package blobstore
