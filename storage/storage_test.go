package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDetectMessageType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected domain.MessageType
		mime     string
	}{
		{name: "png is an image", data: pngHeader, expected: domain.ImageMessage, mime: "image/png"},
		{name: "plain text is a file", data: []byte("hello world"), expected: domain.FileMessage, mime: "text/plain; charset=utf-8"},
		{name: "pdf is a file", data: []byte("%PDF-1.7\n"), expected: domain.FileMessage, mime: "application/pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			messageType, mime := DetectMessageType(tt.data)
			req.Equal(tt.expected, messageType)
			req.Equal(tt.mime, mime)
		})
	}
}

func TestObjectKey(t *testing.T) {
	req := require.New(t)

	key := ObjectKey("../../etc/my cat.png")
	req.True(strings.HasSuffix(key, "-my_cat.png"), key)
	req.NotContains(key, "/")

	req.True(strings.HasSuffix(ObjectKey(".."), "-file"))
	req.NotEqual(ObjectKey("a.txt"), ObjectKey("a.txt"))
}

func TestDiskStorage_Upload_And_Delete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewDiskStorage(dir, "/files", slog.Default())
	req.NoError(err)

	// When a file is uploaded
	fileURL, err := store.Upload(ctx, "cat.png", pngHeader)

	// Then it is written under a unique key and reachable by its url
	req.NoError(err)
	req.True(strings.HasPrefix(fileURL, "/files/"))
	key := strings.TrimPrefix(fileURL, "/files/")
	data, err := os.ReadFile(filepath.Join(dir, key))
	req.NoError(err)
	req.Equal(pngHeader, data)

	// When it is deleted twice
	req.NoError(store.Delete(ctx, fileURL))
	req.NoError(store.Delete(ctx, fileURL))

	// Then it is gone
	_, err = os.Stat(filepath.Join(dir, key))
	req.True(os.IsNotExist(err))
}

func TestNopStorage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	_, err := NopStorage{}.Upload(ctx, "cat.png", pngHeader)
	req.ErrorIs(err, errors.ErrStorageDisabled)
	req.NoError(NopStorage{}.Delete(ctx, "https://bucket/cat.png"))
}

func TestS3Storage_Key_From_Url(t *testing.T) {
	tests := []struct {
		name     string
		storage  S3Storage
		fileURL  string
		expected string
	}{
		{
			name:     "virtual hosted style",
			storage:  S3Storage{bucket: "chat", region: "eu-west-3"},
			fileURL:  "https://chat.s3.eu-west-3.amazonaws.com/1234-cat.png",
			expected: "1234-cat.png",
		},
		{
			name:     "path style with custom endpoint",
			storage:  S3Storage{bucket: "chat", endpoint: "http://localhost:9000"},
			fileURL:  "http://localhost:9000/chat/1234-cat.png",
			expected: "1234-cat.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			key, err := tt.storage.keyFromURL(tt.fileURL)
			req.NoError(err)
			req.Equal(tt.expected, key)
			req.Equal(tt.fileURL, tt.storage.objectURL(key))
		})
	}
}
