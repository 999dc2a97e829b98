package storage

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
)

var _ contract.FileStorage = NopStorage{}

// NopStorage is used when no object storage is configured.
// Uploads are refused, deletions succeed so that message deletion is never blocked.
type NopStorage struct{}

func (NopStorage) Upload(context.Context, string, []byte) (string, error) {
	return "", errors.ErrStorageDisabled
}

func (NopStorage) Delete(context.Context, string) error { return nil }
