package services

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

// sniffLen is how many leading bytes are used to detect the content type
const sniffLen = 3072

// StagingService keeps the file selected in the upload wizard on disk until
// it is uploaded or abandoned. Files live under {sessionID}/.
type StagingService struct {
	basePath          string
	allowedExtensions map[string]bool
	maxFileSizeBytes  int64
}

// NewStagingService creates a new StagingService
func NewStagingService(basePath string, allowedExtensions []string, maxFileSizeMB int64) (*StagingService, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	// Build extension set
	extSet := make(map[string]bool)
	if len(allowedExtensions) == 0 {
		for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".heic", ".heif", ".tiff", ".tif"} {
			extSet[ext] = true
		}
	} else {
		for _, ext := range allowedExtensions {
			extSet[strings.ToLower(ext)] = true
		}
	}

	return &StagingService{
		basePath:          absPath,
		allowedExtensions: extSet,
		maxFileSizeBytes:  maxFileSizeMB * 1024 * 1024,
	}, nil
}

// MaxFileSizeBytes returns the largest file Stage accepts
func (s *StagingService) MaxFileSizeBytes() int64 {
	return s.maxFileSizeBytes
}

// Stage writes the selected file for a session. Only image/* content with an
// allowed extension is accepted.
func (s *StagingService) Stage(sessionID string, reader io.Reader, originalFilename string) (*models.StagedFile, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, models.ErrPathTraversal
	}

	sanitizedFilename := models.SanitizeFilename(originalFilename)
	if strings.TrimSpace(sanitizedFilename) == "" || sanitizedFilename == "." {
		return nil, models.ErrEmptyFilename
	}

	ext := strings.ToLower(filepath.Ext(sanitizedFilename))
	if !s.allowedExtensions[ext] {
		return nil, models.ErrInvalidExtension
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if n == 0 {
		return nil, models.ErrEmptyFile
	}
	header = header[:n]

	mtype := mimetype.Detect(header)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, models.ErrNotAnImage
	}

	folder := filepath.Join(s.basePath, sessionID)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, err
	}

	relativeFilePath := filepath.Join(sessionID, uuid.New().String()+ext)
	absoluteFilePath := filepath.Join(s.basePath, relativeFilePath)

	file, err := os.OpenFile(absoluteFilePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// Read one byte past the limit to detect oversized files
	limited := io.LimitReader(io.MultiReader(bytes.NewReader(header), reader), s.maxFileSizeBytes+1)
	written, err := io.Copy(file, limited)
	if err != nil {
		os.Remove(absoluteFilePath) // Clean up on error
		return nil, err
	}
	if written > s.maxFileSizeBytes {
		os.Remove(absoluteFilePath)
		return nil, models.ErrFileTooLarge
	}

	return &models.StagedFile{
		StoredPath:   filepath.ToSlash(relativeFilePath),
		OriginalName: sanitizedFilename,
		ContentType:  mtype.String(),
		Size:         written,
		Orientation:  1,
	}, nil
}

// Open opens a staged file for reading
func (s *StagingService) Open(storedPath string) (*os.File, error) {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// Delete removes a file by its stored path
func (s *StagingService) Delete(storedPath string) bool {
	if strings.TrimSpace(storedPath) == "" {
		return false
	}

	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return false
	}

	if err := os.Remove(fullPath); err != nil {
		return false
	}

	return true
}

// DeleteSession removes every file staged for a session
func (s *StagingService) DeleteSession(sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return models.ErrPathTraversal
	}
	return os.RemoveAll(filepath.Join(s.basePath, sessionID))
}

// GetFullPath returns the absolute path for a stored path
func (s *StagingService) GetFullPath(storedPath string) (string, error) {
	if strings.TrimSpace(storedPath) == "" {
		return "", fmt.Errorf("stored path cannot be empty")
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(storedPath))

	// Security check
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(absPath, s.basePath+string(os.PathSeparator)) {
		return "", models.ErrPathTraversal
	}

	return absPath, nil
}

// Exists checks if a file exists at the given stored path
func (s *StagingService) Exists(storedPath string) bool {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return false
	}

	_, err = os.Stat(fullPath)
	return err == nil
}

// SessionIDs lists the sessions that currently have a staging folder
func (s *StagingService) SessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}
