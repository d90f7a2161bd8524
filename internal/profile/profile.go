// Package profile stores lab user profiles as JSON files and tracks the
// active user in a plain-text pointer file.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultUser is the shared lab account used when no user is selected.
const DefaultUser = "shared"

var (
	// ErrNotFound is returned for an unknown user id.
	ErrNotFound = errors.New("profile: user not found")
	// ErrInvalidID is returned for ids with characters other than letters, digits and underscores.
	ErrInvalidID = errors.New("profile: username should contain only letters, numbers, or underscores")
)

// Profile is a lab user's storage configuration.
type Profile struct {
	DisplayName string `json:"name"`
	CloudFolder string `json:"dropbox_folder"`
	LocalFolder string `json:"local_folder"`
}

// Entry is a profile listing row.
type Entry struct {
	ID          string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Store is a directory of <id>.json profiles plus an active-user file.
// Writes are last-write-wins.
type Store struct {
	mu         sync.Mutex
	usersDir   string
	activeFile string
	photoRoot  string
	cloudRoot  string
}

// Config locates the store on disk.
type Config struct {
	UsersDir   string
	ActiveFile string
	// PhotoRoot is the parent of each user's default local folder.
	PhotoRoot string
	// CloudRoot is the parent of each user's default cloud folder.
	CloudRoot string
}

// NewStore creates a Store. Call Setup before first use.
func NewStore(cfg Config) *Store {
	return &Store{
		usersDir:   cfg.UsersDir,
		activeFile: cfg.ActiveFile,
		photoRoot:  cfg.PhotoRoot,
		cloudRoot:  cfg.CloudRoot,
	}
}

// Setup creates the users directory, the shared profile and the active-user
// pointer if they do not exist yet.
func (s *Store) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.usersDir, 0o755); err != nil {
		return fmt.Errorf("create users dir: %w", err)
	}

	if _, err := os.Stat(s.profilePath(DefaultUser)); errors.Is(err, os.ErrNotExist) {
		p := Profile{
			DisplayName: "Shared Lab Account",
			CloudFolder: s.defaultCloud(DefaultUser),
			LocalFolder: s.defaultLocal(DefaultUser),
		}
		if err := s.write(DefaultUser, p); err != nil {
			return err
		}
	}

	if _, err := os.Stat(s.activeFile); errors.Is(err, os.ErrNotExist) {
		if err := writeFileAtomic(s.activeFile, []byte(DefaultUser), 0o644); err != nil {
			return fmt.Errorf("write active user: %w", err)
		}
	}
	return nil
}

// List returns all profiles sorted by display name.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(s.usersDir)
	if err != nil {
		return nil, fmt.Errorf("read users dir: %w", err)
	}

	var out []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(f.Name(), ".json")
		p, err := s.read(id)
		if err != nil {
			log.Printf("profile: skipping %s: %v", f.Name(), err)
			continue
		}
		name := p.DisplayName
		if name == "" {
			name = id
		}
		out = append(out, Entry{ID: id, DisplayName: name})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// Get returns the profile for id.
func (s *Store) Get(id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// ActiveID returns the active user id, or DefaultUser if none is recorded.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID()
}

func (s *Store) activeID() string {
	data, err := os.ReadFile(s.activeFile)
	if err != nil {
		return DefaultUser
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return DefaultUser
	}
	return id
}

// Active returns the active user id and profile. An active id without a
// profile falls back to the shared account.
func (s *Store) Active() (string, Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.activeID()
	p, err := s.read(id)
	if errors.Is(err, ErrNotFound) && id != DefaultUser {
		log.Printf("profile: user %q not found, using %q", id, DefaultUser)
		id = DefaultUser
		p, err = s.read(id)
	}
	if err != nil {
		return "", Profile{}, err
	}
	return id, p, nil
}

// SetActive records id as the active user.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(id); err != nil {
		return err
	}
	if err := writeFileAtomic(s.activeFile, []byte(id), 0o644); err != nil {
		return fmt.Errorf("write active user: %w", err)
	}
	log.Printf("profile: active user set to %s", id)
	return nil
}

// Save creates or updates a profile. An empty cloudFolder defaults to
// <cloud root>/<id>. The local folder is always <photo root>/<id> and is
// created. Reports whether the profile was newly created.
func (s *Store) Save(id, displayName, cloudFolder string) (bool, error) {
	if !ValidID(id) {
		return false, ErrInvalidID
	}
	if displayName == "" {
		displayName = id
	}
	if cloudFolder == "" {
		cloudFolder = s.defaultCloud(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.profilePath(id))
	created := errors.Is(statErr, os.ErrNotExist)

	p := Profile{
		DisplayName: displayName,
		CloudFolder: cloudFolder,
		LocalFolder: s.defaultLocal(id),
	}
	if err := s.write(id, p); err != nil {
		return false, err
	}
	if err := os.MkdirAll(p.LocalFolder, 0o755); err != nil {
		return created, fmt.Errorf("create local folder: %w", err)
	}
	return created, nil
}

// ValidID reports whether id is non-empty and only letters, digits and underscores.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *Store) profilePath(id string) string {
	return filepath.Join(s.usersDir, id+".json")
}

func (s *Store) defaultLocal(id string) string {
	return filepath.Join(s.photoRoot, id)
}

func (s *Store) defaultCloud(id string) string {
	return path.Join(s.cloudRoot, id)
}

func (s *Store) read(id string) (Profile, error) {
	if !ValidID(id) {
		return Profile{}, ErrNotFound
	}
	data, err := os.ReadFile(s.profilePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile %s: %w", id, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) write(id string, p Profile) error {
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", id, err)
	}
	if err := writeFileAtomic(s.profilePath(id), data, 0o644); err != nil {
		return fmt.Errorf("write profile %s: %w", id, err)
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never see a
// partial file.
func writeFileAtomic(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
