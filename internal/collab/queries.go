package collab

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/serroba/taskgrid/internal/patch"
	"github.com/serroba/taskgrid/internal/project"
	"go.uber.org/zap"
)

const lastSavedLayout = "2006-01-02 03:04 PM"

// ConflictError reports a whole-document save based on a stale version.
type ConflictError struct {
	Version int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: project is at version %d", e.Version)
}

// Loaded is a project as returned to a client.
type Loaded struct {
	// Data is nil when the project was never saved or edited.
	Data     *project.Document
	Filename string
	Version  int
}

// Summary describes a project in the project list.
type Summary struct {
	Name      string `json:"name"`
	LastSaved string `json:"lastSaved"`
	Entries   int    `json:"entries"`

	modTime time.Time
}

// Load returns a copy of a project's current state.
func (s *Service) Load(rawName string) (Loaded, error) {
	name, err := projectName(rawName)
	if err != nil {
		return Loaded{}, err
	}

	known, err := s.known(name)
	if err != nil || !known {
		return Loaded{}, err
	}

	doc, err := s.cache.Snapshot(name)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{Data: doc, Filename: name + ".json", Version: doc.Version}, nil
}

// Version returns a project's current version, 0 for an unknown project.
func (s *Service) Version(rawName string) (int, error) {
	name, err := projectName(rawName)
	if err != nil {
		return 0, err
	}

	known, err := s.known(name)
	if err != nil || !known {
		return 0, err
	}

	unlock := s.locks.Lock(name)
	defer unlock()

	doc, err := s.cache.Get(name)
	if err != nil {
		return 0, err
	}

	return doc.Version, nil
}

// Projects lists saved projects, most recently saved first. Projects that
// have been edited but not yet flushed follow with an empty LastSaved.
func (s *Service) Projects() ([]Summary, error) {
	infos, err := s.store.List()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))

	for _, info := range infos {
		seen[info.Name] = struct{}{}

		summary := Summary{
			Name:      info.Name,
			LastSaved: info.ModTime.Local().Format(lastSavedLayout),
			modTime:   info.ModTime,
		}

		if doc, err := s.peek(info.Name); err == nil {
			summary.Entries = doc.EntryCount()
		} else {
			s.logger.Warn("project unreadable", zap.String("project", info.Name), zap.Error(err))
		}

		summaries = append(summaries, summary)
	}

	for _, name := range s.cache.Loaded() {
		if _, ok := seen[name]; ok {
			continue
		}

		doc, err := s.cache.Snapshot(name)
		if err != nil || doc.Version == 0 {
			continue
		}

		summaries = append(summaries, Summary{Name: name, Entries: doc.EntryCount()})
	}

	slices.SortStableFunc(summaries, func(a, b Summary) int {
		return cmp.Or(b.modTime.Compare(a.modTime), cmp.Compare(a.Name, b.Name))
	})

	return summaries, nil
}

// Save replaces a whole project. When expectedVersion is set and the live
// version differs, nothing is written and a *ConflictError is returned.
func (s *Service) Save(rawName, user string, doc *project.Document, expectedVersion *int) (int, error) {
	name, err := projectName(rawName)
	if err != nil {
		return 0, err
	}

	if doc.Tasks == nil {
		doc.Tasks, _ = project.NewTree(nil)
	}

	if err := doc.Tasks.CheckPredecessors(); err != nil {
		return 0, patch.Reject(patch.MsgPredecessorGone)
	}

	unlock := s.locks.Lock(name)
	defer unlock()

	live, err := s.cache.Get(name)
	if err != nil {
		return 0, err
	}

	if expectedVersion != nil && *expectedVersion != live.Version {
		return 0, &ConflictError{Version: live.Version}
	}

	doc.Version = live.Version + 1
	doc.RaiseCounter(doc.Tasks.MaxID())
	s.cache.Put(name, doc)

	if s.backups != nil {
		s.backups.MaybeSnapshot(name, doc, doc.Version)
	}

	if s.changeLog != nil {
		s.changeLog.Append(name, user, "saveGroup", map[string]json.RawMessage{
			"version": json.RawMessage(fmt.Sprint(doc.Version)),
		})
	}

	return doc.Version, nil
}

// peek reads a project without adding it to the cache.
func (s *Service) peek(name string) (*project.Document, error) {
	if s.cache.IsLoaded(name) {
		return s.cache.Snapshot(name)
	}

	return s.store.Load(name)
}

// known reports whether a project is stored or already in memory.
func (s *Service) known(name string) (bool, error) {
	if s.cache.IsLoaded(name) {
		return true, nil
	}

	return s.store.Exists(name)
}
