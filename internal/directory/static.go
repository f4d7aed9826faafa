package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	goToken "github.com/MrEthical07/goToken"
)

// ErrInvalidFile is returned for YAML that decodes but describes bad users.
var ErrInvalidFile = errors.New("invalid directory file")

type fileUser struct {
	ID          int64    `yaml:"id"`
	Subject     string   `yaml:"subject"`
	Roles       []string `yaml:"roles"`
	Permissions []string `yaml:"permissions"`
	Status      string   `yaml:"status"`
}

type file struct {
	Users []fileUser `yaml:"users"`
}

// Static is an in-memory directory. Reload swaps the whole user set atomically.
type Static struct {
	mu    sync.RWMutex
	users map[int64]goToken.UserRecord
}

// New returns a directory holding users.
func New(users ...goToken.UserRecord) *Static {
	s := &Static{users: make(map[int64]goToken.UserRecord, len(users))}
	for _, u := range users {
		s.users[u.UserID] = u
	}
	return s
}

// Load reads a YAML directory file:
//
//	users:
//	  - id: 42
//	    subject: alice@example.com
//	    roles: [USER]
//	    status: ACTIVE
func Load(path string) (*Static, error) {
	s := New()
	if err := s.Reload(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the user set with the contents of path. On error the current
// set is kept.
func (s *Static) Reload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	users, err := Parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	return nil
}

// Parse decodes a YAML directory document.
func Parse(r io.Reader) (map[int64]goToken.UserRecord, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	out := make(map[int64]goToken.UserRecord, len(doc.Users))
	for i, u := range doc.Users {
		if u.ID <= 0 || strings.TrimSpace(u.Subject) == "" {
			return nil, fmt.Errorf("%w: user %d needs id and subject", ErrInvalidFile, i)
		}
		if _, dup := out[u.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidFile, u.ID)
		}
		status, err := parseStatus(u.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: user %d: %v", ErrInvalidFile, u.ID, err)
		}
		out[u.ID] = goToken.UserRecord{
			UserID:      u.ID,
			Subject:     u.Subject,
			Roles:       u.Roles,
			Permissions: u.Permissions,
			Status:      status,
		}
	}
	return out, nil
}

func parseStatus(s string) (goToken.AccountStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ACTIVE":
		return goToken.AccountActive, nil
	case "PENDING_VERIFICATION":
		return goToken.AccountPendingVerification, nil
	case "DISABLED":
		return goToken.AccountDisabled, nil
	case "LOCKED":
		return goToken.AccountLocked, nil
	case "DELETED":
		return goToken.AccountDeleted, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// FindUser implements goToken.Directory.
func (s *Static) FindUser(_ context.Context, userID int64) (goToken.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return goToken.UserRecord{}, goToken.ErrUserNotFound
	}
	return u, nil
}

// Put adds or replaces one user.
func (s *Static) Put(u goToken.UserRecord) {
	s.mu.Lock()
	s.users[u.UserID] = u
	s.mu.Unlock()
}

// Len returns the number of users.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
