package s3

import (
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// UploadPart represents a single part of a multipart upload
type UploadPart struct {
	PartNumber   int32     `json:"part_number"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// MultipartUploadStatus represents the status of a multipart upload
type MultipartUploadStatus string

const (
	UploadStatusInitiated  MultipartUploadStatus = "initiated"
	UploadStatusInProgress MultipartUploadStatus = "in_progress"
	UploadStatusCompleted  MultipartUploadStatus = "completed"
	UploadStatusAborted    MultipartUploadStatus = "aborted"
)

// MultipartUploadState tracks one in-progress multipart upload. It is owned
// by the write call that created it and is not safe for concurrent mutation.
type MultipartUploadState struct {
	UploadID      string                `json:"upload_id"`
	Bucket        string                `json:"bucket"`
	Key           string                `json:"key"`
	PartSize      int64                 `json:"part_size"`
	Parts         []UploadPart          `json:"parts"`
	StartedAt     time.Time             `json:"started_at"`
	LastUpdatedAt time.Time             `json:"last_updated_at"`
	BytesUploaded int64                 `json:"bytes_uploaded"`
	Status        MultipartUploadStatus `json:"status"`
}

// NewMultipartUploadState creates a new multipart upload state tracker
func NewMultipartUploadState(uploadID, bucket, key string, partSize int64) *MultipartUploadState {
	now := time.Now()
	return &MultipartUploadState{
		UploadID:      uploadID,
		Bucket:        bucket,
		Key:           key,
		PartSize:      partSize,
		StartedAt:     now,
		LastUpdatedAt: now,
		Status:        UploadStatusInitiated,
	}
}

// NextPartNumber returns the number the next uploaded part must carry.
// Part numbers start at 1.
func (s *MultipartUploadState) NextPartNumber() int32 {
	return int32(len(s.Parts)) + 1
}

// MarkPartCompleted records a successfully uploaded part
func (s *MultipartUploadState) MarkPartCompleted(partNumber int32, size int64, etag string) {
	now := time.Now()
	s.Parts = append(s.Parts, UploadPart{
		PartNumber:   partNumber,
		Size:         size,
		ETag:         etag,
		LastModified: now,
	})
	s.BytesUploaded += size
	s.LastUpdatedAt = now
	s.Status = UploadStatusInProgress
}

// CompletedParts returns the uploaded parts ordered by part number, in the
// form CompleteMultipartUpload expects.
func (s *MultipartUploadState) CompletedParts() []s3types.CompletedPart {
	parts := make([]s3types.CompletedPart, 0, len(s.Parts))
	for _, p := range s.Parts {
		parts = append(parts, s3types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		})
	}
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})
	return parts
}

// MultipartStateManager counts the multipart uploads currently open against
// the bucket. It never reads a tracked state after TrackUpload, since the
// owning write mutates it without locking.
type MultipartStateManager struct {
	mu      sync.RWMutex
	uploads map[string]*MultipartUploadState // Key is upload ID
}

// NewMultipartStateManager creates a new multipart state manager
func NewMultipartStateManager() *MultipartStateManager {
	return &MultipartStateManager{
		uploads: make(map[string]*MultipartUploadState),
	}
}

// TrackUpload starts tracking a new multipart upload
func (m *MultipartStateManager) TrackUpload(state *MultipartUploadState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploads[state.UploadID] = state
}

// Finish records the terminal status of an upload and stops tracking it.
func (m *MultipartStateManager) Finish(uploadID string, status MultipartUploadStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.uploads[uploadID]; exists {
		state.Status = status
		state.LastUpdatedAt = time.Now()
		delete(m.uploads, uploadID)
	}
}

// GetUploadCount returns the total number of tracked uploads
func (m *MultipartStateManager) GetUploadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.uploads)
}
