package storage

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/arxgeo/geodist/internal/dberr"
)

// AzureConfig configures an AzureBackend.
type AzureConfig struct {
	ConnectionString string
	ContainerName    string
}

// AzureBackend stores partition files as blobs in one Azure container.
type AzureBackend struct {
	client    *azblob.Client
	container string
}

// NewAzureBackend dials Azure Blob Storage from a connection string.
func NewAzureBackend(cfg AzureConfig) (*AzureBackend, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "dial azure blob storage", err)
	}
	return &AzureBackend{client: client, container: cfg.ContainerName}, nil
}

func (b *AzureBackend) Type() string { return "azure" }

func (b *AzureBackend) PutReader(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "buffer partition file for azure upload", err)
	}
	if _, err := b.client.UploadBuffer(ctx, b.container, key, data, nil); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "azure upload "+key, err)
	}
	return nil
}

func (b *AzureBackend) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "azure download "+key, err)
	}
	return resp.Body, nil
}

func (b *AzureBackend) Exists(ctx context.Context, key string) (bool, error) {
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{Prefix: &key})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, dberr.Wrap(dberr.CodeFilesystem, "azure list "+key, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil && *item.Name == key {
				return true, nil
			}
		}
	}
	return false, nil
}

func (b *AzureBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.client.DeleteBlob(ctx, b.container, key, nil); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "azure delete "+key, err)
	}
	return nil
}
