package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
	"github.com/Actiegen/collab-whiteboard-backend/internal/infra/blob"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository"
	"github.com/Actiegen/collab-whiteboard-backend/internal/repository/mocks"
	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
)

func newTestFileService(t *testing.T) (*service.FileService, *mocks.BlobRepository) {
	t.Helper()
	store, err := blob.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	blobRepo := new(mocks.BlobRepository)
	return service.NewFileService(store, blobRepo, 0), blobRepo
}

func TestFileService_Upload_Success(t *testing.T) {
	fileService, blobRepo := newTestFileService(t)
	ctx := context.Background()

	blobRepo.On("Register", ctx, mock.MatchedBy(func(ref *domain.FileRef) bool {
		assert.Equal(t, "diagram.png", ref.Name)
		assert.Equal(t, "image/png", ref.ContentType)
		assert.Equal(t, uint(3), ref.RoomID)
		assert.Equal(t, uint(7), ref.UploaderID)
		assert.Contains(t, ref.DownloadURL, ref.ID)
		return true
	}), mock.Anything).Return(nil).Once()

	ref, err := fileService.Upload(ctx, 3, 7, "diagram.png", "image/png", 4, strings.NewReader("data"))

	assert.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, int64(4), ref.Size)
	blobRepo.AssertExpectations(t)
}

func TestFileService_Upload_RejectsDisallowedType(t *testing.T) {
	fileService, blobRepo := newTestFileService(t)

	_, err := fileService.Upload(context.Background(), 1, 1, "run.exe", "application/x-msdownload", 10, strings.NewReader("x"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrFileTypeNotAllowed))
	blobRepo.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}

func TestFileService_Upload_RejectsOversize(t *testing.T) {
	fileService, blobRepo := newTestFileService(t)

	_, err := fileService.Upload(context.Background(), 1, 1, "big.png", "image/png", service.MaxUploadSize+1, strings.NewReader("x"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrFileTooLarge))
	blobRepo.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}

func TestFileService_Download_NotFound(t *testing.T) {
	fileService, blobRepo := newTestFileService(t)
	ctx := context.Background()

	blobRepo.On("Resolve", ctx, "gone").Return(nil, repository.ErrBlobNotFound).Once()

	_, _, err := fileService.Download(ctx, "gone")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrFileNotFound))
	blobRepo.AssertExpectations(t)
}
