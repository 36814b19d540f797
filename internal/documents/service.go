package documents

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"tailor-backend/internal/extract"
	"tailor-backend/internal/shared/util"
)

// maxUploadBytes bounds how much of an upload is read into memory.
const maxUploadBytes = 5 << 20

// Service contains business logic for base resumes.
type Service struct {
	Repo DocumentsRepo
}

// Upload extracts resume text from the file and records it as the
// caller's newest base document.
func (s *Service) Upload(ctx context.Context, userID, fileName string, r io.Reader) (Document, error) {
	if userID == "" || fileName == "" {
		return Document{}, ErrInvalidInput
	}
	fileName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return Document{}, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, maxUploadBytes)
	}
	if len(data) == 0 {
		return Document{}, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	content, mimeType, err := extract.TextFromBytes(data, fileName)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  fileName,
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Current returns the caller's newest base document.
func (s *Service) Current(ctx context.Context, userID string) (Document, error) {
	if userID == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetCurrentByUser(ctx, userID)
}

// Get returns a base document by ID.
func (s *Service) Get(ctx context.Context, userID, documentID string) (Document, error) {
	if userID == "" || documentID == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, userID, documentID)
}
