package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/joseph-ayodele/menuocr/constants"
)

// BlobStore downloads menu photos kept in object storage.
type BlobStore interface {
	Download(ctx context.Context, container, blob string) ([]byte, error)
}

type azureStorage struct {
	client *azblob.Client
}

func NewAzureStorage(accountName string, accountKey string) (BlobStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &azureStorage{client: client}, nil
}

func (s *azureStorage) Download(ctx context.Context, container, blob string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	body := resp.Body
	defer func() { _ = body.Close() }()

	return readCapped(body)
}

// readCapped reads at most MaxImageBytes and fails on anything larger.
func readCapped(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, constants.MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > constants.MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", constants.MaxImageBytes)
	}
	return b, nil
}
