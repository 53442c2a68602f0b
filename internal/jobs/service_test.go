package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/storage"
	"github.com/cuongbtq/jigsaw-be/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend unavailable")

// brokenRecords fails every read with a storage failure
type brokenRecords struct {
	storage.RecordStore
}

func (brokenRecords) GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	return nil, domain.E(domain.KindStorageFailure, "get job", errBackend)
}

type failingSigner struct{}

func (failingSigner) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return "", errBackend
}

type testEnv struct {
	records *memory.RecordStore
	objects *memory.ObjectStore
	service *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := memory.NewRecordStore()
	objects := memory.NewObjectStore()

	service := NewService(&Config{
		Records: records,
		Objects: objects,
		Signer:  objects,
		Logger:  logger,
	})

	seq := 0
	service.newID = func() string {
		seq++
		return fmt.Sprintf("job-%d", seq)
	}

	return &testEnv{records: records, objects: objects, service: service}
}

func TestService_Create(t *testing.T) {
	tests := []struct {
		name        string
		pieceCount  int
		expectError bool
	}{
		{name: "100 pieces", pieceCount: 100},
		{name: "2000 pieces", pieceCount: 2000},
		{name: "unsupported 400", pieceCount: 400, expectError: true},
		{name: "zero", pieceCount: 0, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			job, err := env.service.Create(ctx, "u1", "My puzzle", tt.pieceCount)

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, job)
				assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
				assert.ErrorIs(t, err, domain.ErrUnsupportedPieceCount)

				jobs, err := env.records.ListJobs(ctx, "u1")
				require.NoError(t, err)
				assert.Empty(t, jobs)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "job-1", job.JobID)
			assert.Equal(t, "u1", job.OwnerID)
			assert.Equal(t, "My puzzle", job.DisplayName)
			assert.Equal(t, tt.pieceCount, job.PieceCount)
			assert.Equal(t, domain.JobStatusPending, job.Status)
			assert.False(t, job.CreatedAt.IsZero())

			stored, err := env.service.Get(ctx, "u1", job.JobID)
			require.NoError(t, err)
			assert.Equal(t, job, stored)
		})
	}
}

func TestService_GetMissingJob(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.service.Get(context.Background(), "u1", "missing")

	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestService_GetMasksStorageFailure(t *testing.T) {
	service := NewService(&Config{
		Records: brokenRecords{RecordStore: memory.NewRecordStore()},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	job, err := service.Get(context.Background(), "u1", "job-1")

	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestService_GetIsScopedByOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.service.Create(ctx, "u1", "mine", 100)
	require.NoError(t, err)

	other, err := env.service.Get(ctx, "u2", job.JobID)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestService_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Create(ctx, "u1", "a", 100)
	require.NoError(t, err)
	_, err = env.service.Create(ctx, "u1", "b", 300)
	require.NoError(t, err)
	_, err = env.service.Create(ctx, "u2", "c", 500)
	require.NoError(t, err)

	jobs, err := env.service.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].DisplayName)
	assert.Equal(t, "a", jobs[1].DisplayName)
}

func TestService_IssueUploadURL(t *testing.T) {
	tests := []struct {
		name                string
		fileName            string
		expectedKey         string
		expectedFileName    string
		expectedContentType string
		expectedKind        domain.Kind
		expectError         bool
	}{
		{
			name:                "jpeg upload",
			fileName:            "holiday.JPEG",
			expectedKey:         "puzzles/job-1.jpeg",
			expectedFileName:    "holiday.JPEG",
			expectedContentType: storage.ContentTypeJPEG,
		},
		{
			name:                "png upload",
			fileName:            "cat.png",
			expectedKey:         "puzzles/job-1.png",
			expectedFileName:    "cat.png",
			expectedContentType: storage.ContentTypePNG,
		},
		{
			name:                "default file name",
			fileName:            "",
			expectedKey:         "puzzles/job-1.jpg",
			expectedFileName:    DefaultFileName,
			expectedContentType: storage.ContentTypeJPEG,
		},
		{
			name:         "unsupported extension",
			fileName:     "notes.txt",
			expectError:  true,
			expectedKind: domain.KindInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			job, err := env.service.Create(ctx, "u1", "puzzle", 100)
			require.NoError(t, err)

			target, err := env.service.IssueUploadURL(ctx, "u1", job.JobID, tt.fileName)

			stored, getErr := env.service.Get(ctx, "u1", job.JobID)
			require.NoError(t, getErr)

			if tt.expectError {
				require.Error(t, err)
				assert.Equal(t, tt.expectedKind, domain.KindOf(err))
				assert.Nil(t, target)
				assert.Equal(t, domain.JobStatusPending, stored.Status)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, job.JobID, target.JobID)
			assert.Equal(t, tt.expectedKey, target.ObjectKey)
			assert.Equal(t, tt.expectedContentType, target.ContentType)
			assert.Equal(t, DefaultUploadURLExpiry, target.ExpiresIn)
			assert.Contains(t, target.URL, tt.expectedKey)

			assert.Equal(t, domain.JobStatusUploaded, stored.Status)
			assert.Equal(t, tt.expectedKey, stored.SourceObjectKey)
			assert.Equal(t, tt.expectedFileName, stored.FileName)
		})
	}
}

func TestService_IssueUploadURL_MissingJob(t *testing.T) {
	env := newTestEnv(t)

	target, err := env.service.IssueUploadURL(context.Background(), "u1", "missing", "a.jpg")

	require.Error(t, err)
	assert.Nil(t, target)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestService_IssueUploadURL_TerminalJob(t *testing.T) {
	tests := []struct {
		name   string
		finish func(ctx context.Context, status *StatusMachine, jobID string) error
		want   domain.JobStatus
	}{
		{
			name: "completed",
			finish: func(ctx context.Context, status *StatusMachine, jobID string) error {
				return status.MarkCompleted(ctx, "u1", jobID, 10, 10, 100)
			},
			want: domain.JobStatusCompleted,
		},
		{
			name: "failed",
			finish: func(ctx context.Context, status *StatusMachine, jobID string) error {
				return status.MarkFailed(ctx, "u1", jobID, "decode failed")
			},
			want: domain.JobStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			job, err := env.service.Create(ctx, "u1", "puzzle", 100)
			require.NoError(t, err)
			_, err = env.service.IssueUploadURL(ctx, "u1", job.JobID, "a.jpg")
			require.NoError(t, err)
			require.NoError(t, env.service.status.MarkProcessing(ctx, "u1", job.JobID))
			require.NoError(t, tt.finish(ctx, env.service.status, job.JobID))

			target, err := env.service.IssueUploadURL(ctx, "u1", job.JobID, "b.png")

			require.Error(t, err)
			assert.Nil(t, target)
			assert.True(t, domain.IsKind(err, domain.KindConflict))
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)

			stored, err := env.records.GetJob(ctx, "u1", job.JobID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)
			assert.Equal(t, "puzzles/job-1.jpg", stored.SourceObjectKey)
			assert.False(t, domain.CanTransition(stored.Status, domain.JobStatusProcessing))
		})
	}
}

func TestService_IssueUploadURL_SignerFailure(t *testing.T) {
	records := memory.NewRecordStore()
	service := NewService(&Config{
		Records: records,
		Objects: memory.NewObjectStore(),
		Signer:  failingSigner{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx := context.Background()

	job, err := service.Create(ctx, "u1", "puzzle", 100)
	require.NoError(t, err)

	_, err = service.IssueUploadURL(ctx, "u1", job.JobID, "a.jpg")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindStorageFailure))

	stored, err := records.GetJob(ctx, "u1", job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, stored.Status)
}

func TestService_ListPieces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.ListPieces(ctx, "u1", "missing")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	job, err := env.service.Create(ctx, "u1", "puzzle", 100)
	require.NoError(t, err)

	pieces, err := env.service.ListPieces(ctx, "u1", job.JobID)
	require.NoError(t, err)
	assert.Empty(t, pieces)

	require.NoError(t, env.records.PutPiece(ctx, &domain.Piece{OwnerID: "u1", JobID: job.JobID, PieceID: "p1"}))
	pieces, err = env.service.ListPieces(ctx, "u1", job.JobID)
	require.NoError(t, err)
	assert.Len(t, pieces, 1)
}

func TestService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.service.Create(ctx, "u1", "puzzle", 100)
	require.NoError(t, err)
	target, err := env.service.IssueUploadURL(ctx, "u1", job.JobID, "a.jpg")
	require.NoError(t, err)
	require.NoError(t, env.objects.PutObject(ctx, target.ObjectKey, []byte("img"), storage.ContentTypeJPEG))

	for _, id := range []string{"p1", "p2"} {
		key := domain.PieceObjectKey(job.JobID, id)
		require.NoError(t, env.objects.PutObject(ctx, key, []byte("piece"), storage.ContentTypeJPEG))
		require.NoError(t, env.records.PutPiece(ctx, &domain.Piece{OwnerID: "u1", JobID: job.JobID, PieceID: id, ObjectKey: key}))
	}

	require.NoError(t, env.service.Delete(ctx, "u1", job.JobID))

	stored, err := env.service.Get(ctx, "u1", job.JobID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	pieces, err := env.records.ListPieces(ctx, job.JobID)
	require.NoError(t, err)
	assert.Empty(t, pieces)
	assert.Empty(t, env.objects.Keys(""))

	err = env.service.Delete(ctx, "u1", job.JobID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestFileExt(t *testing.T) {
	tests := map[string]string{
		"photo.jpg":      "jpg",
		"photo.PNG":      "png",
		"archive.tar.gz": "gz",
		"noext":          "jpg",
	}
	for name, expected := range tests {
		assert.Equal(t, expected, FileExt(name), name)
	}
}
