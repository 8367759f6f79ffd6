package document

import (
	"github.com/solisoft/solidb/dberr"
)

// PutBlobChunk writes one chunk of a blob-typed collection's value under
// key. Blob operations require collection.type == "blob".
func (c *Collection) PutBlobChunk(key string, chunk int, data []byte) error {
	if c.Type != TypeBlob {
		return dberr.New(dberr.OperationNotSupported, "blob operations require collection type %q, got %q", TypeBlob, c.Type)
	}
	return c.store.Set(blobChunkKey(c.Name, key, chunk), data)
}

// GetBlobChunk reads one chunk; ok is false if absent.
func (c *Collection) GetBlobChunk(key string, chunk int) ([]byte, bool, error) {
	if c.Type != TypeBlob {
		return nil, false, dberr.New(dberr.OperationNotSupported, "blob operations require collection type %q, got %q", TypeBlob, c.Type)
	}
	return c.store.Get(blobChunkKey(c.Name, key, chunk))
}

// DeleteBlob removes every chunk stored under key.
func (c *Collection) DeleteBlob(key string) error {
	if c.Type != TypeBlob {
		return dberr.New(dberr.OperationNotSupported, "blob operations require collection type %q, got %q", TypeBlob, c.Type)
	}
	return c.store.DeletePrefix(blobKeyPrefix(c.Name, key))
}
