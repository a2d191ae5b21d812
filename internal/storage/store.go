package storage

import (
	"errors"
	"regexp"
	"time"

	"github.com/serroba/taskgrid/internal/project"
)

// Common errors.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidName      = errors.New("invalid project name")
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// SanitizeName strips everything but ASCII letters, digits, underscore and
// hyphen. The result names the project's file, backup and log directories.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "")
}

// Info describes a stored project.
type Info struct {
	Name    string
	ModTime time.Time
}

// Store defines the interface for persisting project documents.
// Names passed to a Store are already sanitized.
type Store interface {
	// Load reads the last durable snapshot of a project.
	// Returns ErrDocumentNotFound if the project was never saved.
	Load(name string) (*project.Document, error)

	// Save durably replaces the stored snapshot of a project.
	Save(name string, doc *project.Document) error

	// List returns every stored project.
	List() ([]Info, error)

	// Exists reports whether a project has been saved.
	Exists(name string) (bool, error)
}
