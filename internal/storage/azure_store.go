package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type azureStore struct {
	client    *azblob.Client
	account   string
	container string
	prefix    string
}

// NewAzureStore stores artifacts as block blobs in container, below prefix
func NewAzureStore(accountName, accountKey, container, prefix string) (ArtifactStore, error) {
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

	return &azureStore{
		client:    client,
		account:   accountName,
		container: container,
		prefix:    strings.Trim(prefix, "/"),
	}, nil
}

func (s *azureStore) Location() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", s.account, s.container, s.prefix)
}

func (s *azureStore) blobName(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *azureStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	name := s.blobName(key)
	if _, err := s.client.UploadBuffer(ctx, s.container, name, data, nil); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", s.account, s.container, name), nil
}

func (s *azureStore) Get(ctx context.Context, key string) ([]byte, error) {
	name := s.blobName(key)
	downloadResponse, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%s: %w", key, ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()
	return io.ReadAll(retryReader)
}
