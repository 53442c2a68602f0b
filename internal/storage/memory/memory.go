// Package memory keeps job records and objects in process memory. It backs
// local runs without cloud credentials and the engine and service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/jigsaw-be/internal/domain"
)

type jobKey struct {
	ownerID string
	jobID   string
}

// RecordStore is an in-memory storage.RecordStore
type RecordStore struct {
	mu     sync.RWMutex
	jobs   map[jobKey]domain.Job
	pieces map[string][]domain.Piece
}

// NewRecordStore creates an empty RecordStore
func NewRecordStore() *RecordStore {
	return &RecordStore{
		jobs:   make(map[jobKey]domain.Job),
		pieces: make(map[string][]domain.Piece),
	}
}

func (s *RecordStore) PutJob(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "put job", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobKey{job.OwnerID, job.JobID}] = *job
	return nil
}

func (s *RecordStore) GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "get job", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobKey{ownerID, jobID}]
	if !ok {
		return nil, domain.E(domain.KindNotFound, "get job", domain.ErrJobNotFound)
	}
	return &job, nil
}

// UpdateJob applies update to an existing job
func (s *RecordStore) UpdateJob(ctx context.Context, ownerID, jobID string, update domain.JobUpdate) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "update job", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobKey{ownerID, jobID}
	job, ok := s.jobs[key]
	if !ok {
		return domain.E(domain.KindNotFound, "update job", domain.ErrJobNotFound)
	}
	update.Apply(&job)
	s.jobs[key] = job
	return nil
}

func (s *RecordStore) ListJobs(ctx context.Context, ownerID string) ([]domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "list jobs", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]domain.Job, 0)
	for key, job := range s.jobs {
		if key.ownerID == ownerID {
			jobs = append(jobs, job)
		}
	}
	sortJobs(jobs)
	return jobs, nil
}

func (s *RecordStore) DeleteJob(ctx context.Context, ownerID, jobID string) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "delete job", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobKey{ownerID, jobID})
	return nil
}

func (s *RecordStore) PutPiece(ctx context.Context, piece *domain.Piece) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "put piece", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pieces := s.pieces[piece.JobID]
	for i := range pieces {
		if pieces[i].PieceID == piece.PieceID {
			pieces[i] = *piece
			return nil
		}
	}
	s.pieces[piece.JobID] = append(pieces, *piece)
	return nil
}

func (s *RecordStore) ListPieces(ctx context.Context, jobID string) ([]domain.Piece, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "list pieces", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	pieces := make([]domain.Piece, len(s.pieces[jobID]))
	copy(pieces, s.pieces[jobID])
	sortPieces(pieces)
	return pieces, nil
}

func (s *RecordStore) DeletePieces(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "delete pieces", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pieces, jobID)
	return nil
}

// sortJobs orders newest first, the order every RecordStore lists in
func sortJobs(jobs []domain.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].JobID > jobs[j].JobID
	})
}

// sortPieces orders row-major by solved position
func sortPieces(pieces []domain.Piece) {
	sort.Slice(pieces, func(i, j int) bool {
		a, b := pieces[i], pieces[j]
		if a.CorrectRow != b.CorrectRow {
			return a.CorrectRow < b.CorrectRow
		}
		if a.CorrectCol != b.CorrectCol {
			return a.CorrectCol < b.CorrectCol
		}
		return a.PieceID < b.PieceID
	})
}

type object struct {
	data        []byte
	contentType string
}

// ObjectStore is an in-memory storage.ObjectStore and storage.UploadSigner
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewObjectStore creates an empty ObjectStore
func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string]object)}
}

func (s *ObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "get object", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, domain.E(domain.KindStorageFailure, "get object", fmt.Errorf("no such key: %s", key))
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

func (s *ObjectStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "put object", err)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: buf, contentType: contentType}
	return nil
}

func (s *ObjectStore) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return domain.E(domain.KindStorageFailure, "delete object", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// PresignPut returns a memory:// URL; nothing can be uploaded through it.
func (s *ObjectStore) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s?content-type=%s&expires=%d", key, contentType, int(expires.Seconds())), nil
}

// Keys returns the stored keys with the given prefix, sorted
func (s *ObjectStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type stored with key
func (s *ObjectStore) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key].contentType
}
