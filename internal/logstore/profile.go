package logstore

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pavelanni/teachmate/internal/model"
)

// ProfileFile is the default profile store file name inside the data dir.
const ProfileFile = "user_profiles.json"

const profileSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "properties": {
      "full_name":   {"type": "string"},
      "email":       {"type": "string"},
      "role":        {"type": "string"},
      "institution": {"type": "string"}
    }
  }
}`

// ProfileStore maps usernames to profiles.
type ProfileStore struct {
	mu   sync.Mutex
	file jsonFile
}

// NewProfileStore opens the profile store at path.
func NewProfileStore(path string) (*ProfileStore, error) {
	f, err := newJSONFile(path, profileSchema)
	if err != nil {
		return nil, err
	}
	return &ProfileStore{file: f}, nil
}

// OpenProfileStore opens the default profile store inside dataDir.
func OpenProfileStore(dataDir string) (*ProfileStore, error) {
	return NewProfileStore(filepath.Join(dataDir, ProfileFile))
}

// Path returns the backing file path.
func (s *ProfileStore) Path() string { return s.file.path }

func (s *ProfileStore) load() (map[string]model.UserProfile, bool, error) {
	profiles := make(map[string]model.UserProfile)
	corrupt, err := s.file.loadOrEmpty(&profiles)
	if err != nil {
		return nil, false, fmt.Errorf("load profiles: %w", err)
	}
	if corrupt {
		profiles = make(map[string]model.UserProfile)
	}
	for name, p := range profiles {
		p.Username = name
		profiles[name] = p
	}
	return profiles, corrupt, nil
}

// Get returns the profile of username, creating and persisting an empty one
// if none exists yet.
func (s *ProfileStore) Get(username string) (model.UserProfile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.UserProfile{}, fmt.Errorf("get profile: empty username")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, corrupt, err := s.load()
	if err != nil {
		return model.UserProfile{}, err
	}
	if p, ok := profiles[username]; ok {
		return p, nil
	}

	p := model.UserProfile{Username: username}
	profiles[username] = p
	if corrupt {
		s.file.quarantine()
	}
	if err := s.file.write(profiles); err != nil {
		return model.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

// Upsert stores p under p.Username, replacing any previous profile.
func (s *ProfileStore) Upsert(p model.UserProfile) error {
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return fmt.Errorf("save profile: empty username")
	}
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.TrimSpace(p.Email)
	p.Institution = strings.TrimSpace(p.Institution)

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, corrupt, err := s.load()
	if err != nil {
		return err
	}
	profiles[p.Username] = p
	if corrupt {
		s.file.quarantine()
	}
	if err := s.file.write(profiles); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// LoadAll returns every profile sorted by username.
func (s *ProfileStore) LoadAll() ([]model.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, _, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.UserProfile, 0, len(profiles))
	for _, name := range slices.Sorted(maps.Keys(profiles)) {
		out = append(out, profiles[name])
	}
	return out, nil
}
