package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/serroba/taskgrid/internal/project"
)

const documentExt = ".json"

// FileStore keeps one JSON file per project in a directory.
type FileStore struct {
	dir    string
	writer *Writer
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, writer *Writer) *FileStore {
	if writer == nil {
		writer = NewWriter(WriterConfig{})
	}

	return &FileStore{dir: dir, writer: writer}
}

// Path returns the file that holds a project.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, SanitizeName(name)+documentExt)
}

// Load reads a project file.
func (s *FileStore) Load(name string) (*project.Document, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDocumentNotFound
		}

		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var doc project.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	return &doc, nil
}

// Save atomically replaces a project file.
func (s *FileStore) Save(name string, doc *project.Document) error {
	if SanitizeName(name) == "" {
		return ErrInvalidName
	}

	return s.writer.WriteJSON(s.Path(name), doc)
}

// Exists reports whether a project file is present.
func (s *FileStore) Exists(name string) (bool, error) {
	_, err := os.Stat(s.Path(name))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// List returns the projects found in the directory.
func (s *FileStore) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Info{}, nil
		}

		return nil, err
	}

	infos := make([]Info, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), documentExt) {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}

		infos = append(infos, Info{
			Name:    strings.TrimSuffix(entry.Name(), documentExt),
			ModTime: fi.ModTime(),
		})
	}

	return infos, nil
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)
