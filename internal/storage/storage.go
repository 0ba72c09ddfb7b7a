// Package storage persists uploaded documents and extracted images on disk.
// Paths are partitioned per owner and per document so concurrent uploads from
// different users never collide.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStore manages document and image files under a root directory.
// Layout: <root>/<owner_id>/<document_id>/source.pdf and
// <root>/<owner_id>/<document_id>/pages/page_NNN.jpg.
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at the given directory
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// DocumentDir returns the directory holding a document and its derived images
func (s *FileStore) DocumentDir(ownerID, documentID string) string {
	return filepath.Join(s.root, ownerID, documentID)
}

// DocumentPath returns the path of the stored source file
func (s *FileStore) DocumentPath(ownerID, documentID string) string {
	return filepath.Join(s.DocumentDir(ownerID, documentID), "source.pdf")
}

// PagesDir returns the directory holding a document's extracted page images
func (s *FileStore) PagesDir(ownerID, documentID string) string {
	return filepath.Join(s.DocumentDir(ownerID, documentID), "pages")
}

// PagePath returns the path for an extracted page image by sequence number
func (s *FileStore) PagePath(ownerID, documentID string, sequence int) string {
	return filepath.Join(s.PagesDir(ownerID, documentID), fmt.Sprintf("page_%03d.jpg", sequence))
}

// SaveDocument writes the uploaded bytes to the document's storage path
func (s *FileStore) SaveDocument(ownerID, documentID string, r io.Reader) (string, int64, error) {
	dir := s.DocumentDir(ownerID, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create document directory: %w", err)
	}

	path := s.DocumentPath(ownerID, documentID)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create document file: %w", err)
	}

	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", 0, fmt.Errorf("failed to write document file: %w", err)
	}

	return path, written, nil
}

// EnsurePagesDir creates the pages directory for a document
func (s *FileStore) EnsurePagesDir(ownerID, documentID string) (string, error) {
	dir := s.PagesDir(ownerID, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create pages directory: %w", err)
	}
	return dir, nil
}

// RemoveDocument removes a document's directory including extracted images
func (s *FileStore) RemoveDocument(ownerID, documentID string) error {
	return os.RemoveAll(s.DocumentDir(ownerID, documentID))
}

// RemoveOwner removes everything stored for an owner
func (s *FileStore) RemoveOwner(ownerID string) error {
	return os.RemoveAll(filepath.Join(s.root, ownerID))
}

// Remove removes a single stored file
func (s *FileStore) Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Open opens a stored file for reading
func (s *FileStore) Open(path string) (io.ReadSeekCloser, error) {
	return os.Open(path)
}
