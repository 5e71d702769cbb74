package blockstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// AzureStore is a Store backed by a single blob container, one blob per
// content hash. Adapted from the teacher's logblobcontext.go/objectstore.go
// conditional-PUT pattern: a massif blob there is read-modify-written under
// an If-Match ETag guard because a massif grows in place. A block here never
// changes once written, so only the create-if-absent half of that pattern
// applies — every Put is an If-None-Match: * upload, and "blob already
// exists" is treated as success rather than a conflict to resolve.
type AzureStore struct {
	client *azblob.Client
}

var _ Store = (*AzureStore)(nil)

// NewAzureStore wraps an already-constructed container client.
func NewAzureStore(client *azblob.Client) *AzureStore {
	return &AzureStore{client: client}
}

// blobName encodes a content hash as a flat blob name. Azure blob names
// tolerate the base32-ish CID text form directly, but base64url keeps names
// short and case-sensitive-safe across storage accounts with differing
// case-folding behavior.
func blobName(h link.ContentHash) string {
	return base64.URLEncoding.EncodeToString(h.Bytes())
}

func (s *AzureStore) GetBlock(ctx context.Context, h link.ContentHash) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, "", blobName(h), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("blockstore: downloading block: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("blockstore: reading block body: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *AzureStore) HasBlock(ctx context.Context, h link.ContentHash) (bool, error) {
	_, err := s.client.ServiceClient().NewContainerClient("").NewBlobClient(blobName(h)).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("blockstore: checking block presence: %w", err)
	}
	return true, nil
}

func (s *AzureStore) PutBlock(ctx context.Context, codec link.Codec, data []byte) (link.ContentHash, error) {
	h, err := link.Sum(codec, data)
	if err != nil {
		return link.ContentHash{}, err
	}

	_, err = s.client.UploadBuffer(ctx, "", blobName(h), data, &azblob.UploadBufferOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		},
	})
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists) || bloberror.HasCode(err, bloberror.ConditionNotMet) {
			return h, nil // content-addressed: an existing blob is the same bytes
		}
		return link.ContentHash{}, fmt.Errorf("blockstore: uploading block: %w", err)
	}
	return h, nil
}

func (s *AzureStore) PutLinks(ctx context.Context, roots []link.ContentHash, blocks map[string][]byte) error {
	for key, data := range blocks {
		h, err := link.Parse([]byte(key))
		if err != nil {
			return fmt.Errorf("blockstore: decoding block key: %w", err)
		}
		if _, err := s.PutBlock(ctx, h.Codec(), data); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op: every PutBlock call is already a durable upload.
func (s *AzureStore) Flush(ctx context.Context) error { return nil }
