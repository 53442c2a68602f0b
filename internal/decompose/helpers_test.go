package decompose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/cuongbtq/jigsaw-be/internal/jobs"
	"github.com/cuongbtq/jigsaw-be/internal/storage"
	"github.com/cuongbtq/jigsaw-be/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected storage failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingRecords wraps a RecordStore, remembers every status written, and
// can fail the n-th piece write.
type recordingRecords struct {
	storage.RecordStore

	mu          sync.Mutex
	statuses    []domain.JobStatus
	updates     []domain.JobUpdate
	pieceWrites int
	failPieceOn int
}

func (r *recordingRecords) PutJob(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, job.Status)
	r.mu.Unlock()
	return r.RecordStore.PutJob(ctx, job)
}

func (r *recordingRecords) UpdateJob(ctx context.Context, ownerID, jobID string, update domain.JobUpdate) error {
	r.mu.Lock()
	if update.Status != nil {
		r.statuses = append(r.statuses, *update.Status)
	}
	r.updates = append(r.updates, update)
	r.mu.Unlock()
	return r.RecordStore.UpdateJob(ctx, ownerID, jobID, update)
}

func (r *recordingRecords) PutPiece(ctx context.Context, piece *domain.Piece) error {
	r.mu.Lock()
	r.pieceWrites++
	fail := r.failPieceOn > 0 && r.pieceWrites == r.failPieceOn
	r.mu.Unlock()
	if fail {
		return domain.E(domain.KindStorageFailure, "put piece", errInjected)
	}
	return r.RecordStore.PutPiece(ctx, piece)
}

func (r *recordingRecords) Statuses() []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.JobStatus, len(r.statuses))
	copy(out, r.statuses)
	return out
}

// countingObjects counts reads so tests can assert no I/O happened
type countingObjects struct {
	*memory.ObjectStore

	mu    sync.Mutex
	reads int
}

func (c *countingObjects) GetObject(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.ObjectStore.GetObject(ctx, key)
}

type fixture struct {
	records *recordingRecords
	objects *countingObjects
	service *jobs.Service
	status  *jobs.StatusMachine
	engine  *Engine
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()

	logger := discardLogger()
	records := &recordingRecords{RecordStore: memory.NewRecordStore()}
	objects := &countingObjects{ObjectStore: memory.NewObjectStore()}
	status := jobs.NewStatusMachine(records, logger)

	service := jobs.NewService(&jobs.Config{
		Records: records,
		Objects: objects,
		Signer:  objects.ObjectStore,
		Status:  status,
		Logger:  logger,
	})

	engine := NewEngine(&Config{
		Objects:     objects,
		Pieces:      NewPieceWriter(objects, records, logger, DefaultJPEGQuality),
		Status:      status,
		Logger:      logger,
		Concurrency: concurrency,
	})

	return &fixture{
		records: records,
		objects: objects,
		service: service,
		status:  status,
		engine:  engine,
	}
}

// uploadedJob registers a job, assigns its upload target and stores a PNG of
// the given size at the source key.
func (f *fixture) uploadedJob(t *testing.T, pieceCount, width, height int) *domain.Job {
	t.Helper()
	ctx := context.Background()

	job, err := f.service.Create(ctx, "u1", "test puzzle", pieceCount)
	require.NoError(t, err)

	target, err := f.service.IssueUploadURL(ctx, "u1", job.JobID, "photo.png")
	require.NoError(t, err)

	require.NoError(t, f.objects.PutObject(ctx, target.ObjectKey, encodePNG(t, width, height), storage.ContentTypePNG))

	job, err = f.service.Get(ctx, "u1", job.JobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(encodePNG(t, width, height)))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// withExifOrientation inserts an APP1 Exif segment carrying only the
// orientation tag right after the JPEG SOI marker.
func withExifOrientation(t *testing.T, data []byte, orientation byte) []byte {
	t.Helper()
	require.True(t, len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8)

	payload := []byte("Exif\x00\x00")
	payload = append(payload,
		'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00, // little-endian TIFF header, IFD0 at 8
		0x01, 0x00, // one entry
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, orientation, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // no next IFD
	)
	size := len(payload) + 2

	out := make([]byte, 0, len(data)+size+2)
	out = append(out, data[:2]...)
	out = append(out, 0xFF, 0xE1, byte(size>>8), byte(size))
	out = append(out, payload...)
	return append(out, data[2:]...)
}
