package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/community-services/internal/domain"
	apperrors "github.com/spec-kit/community-services/pkg/util/errorutil"
)

// Directory resolves principals. Production deployments back it with an
// identity provider; the in-memory version serves development and tests.
type Directory interface {
	Lookup(ctx context.Context, email string) (domain.Principal, error)
	Authenticate(ctx context.Context, email, password string) (domain.Principal, error)
}

// DirectoryEntry is one account in a directory file.
type DirectoryEntry struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Role        string `yaml:"role"`
	Team        string `yaml:"team"`
	Password    string `yaml:"password"`
}

type memoryDirectory struct {
	mu         sync.RWMutex
	principals map[string]domain.Principal
}

// NewMemoryDirectory hashes entry passwords and indexes them by email.
func NewMemoryDirectory(entries []DirectoryEntry, bcryptCost int) (Directory, error) {
	dir := &memoryDirectory{principals: make(map[string]domain.Principal, len(entries))}
	for _, entry := range entries {
		role := domain.Role(strings.ToLower(entry.Role))
		if !role.Valid() {
			return nil, fmt.Errorf("directory entry %s: unknown role %q", entry.Email, entry.Role)
		}
		hash, err := hashSecret(entry.Password, bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", entry.Email, err)
		}
		email := normalizeEmail(entry.Email)
		dir.principals[email] = domain.Principal{
			Email:        email,
			DisplayName:  entry.DisplayName,
			Role:         role,
			Team:         entry.Team,
			PasswordHash: hash,
		}
	}
	return dir, nil
}

// DemoEntries are the accounts offered on the portal's demo login.
func DemoEntries() []DirectoryEntry {
	return []DirectoryEntry{
		{Email: "admin@company.com", DisplayName: "Admin User", Role: "admin", Password: "admin123"},
		{Email: "john.doe@company.com", DisplayName: "John Doe", Role: "employee", Team: "Maintenance Team", Password: "employee123"},
		{Email: "jane.smith@company.com", DisplayName: "Jane Smith", Role: "employee", Team: "Transport Team", Password: "employee123"},
		{Email: "guest@visitor.com", DisplayName: "Guest User", Role: "guest", Password: "guest123"},
	}
}

// LoadDirectoryFile reads directory entries from a YAML file.
func LoadDirectoryFile(path string) ([]DirectoryEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var doc struct {
		Principals []DirectoryEntry `yaml:"principals"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}
	return doc.Principals, nil
}

func (d *memoryDirectory) Lookup(_ context.Context, email string) (domain.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.principals[normalizeEmail(email)]
	if !ok {
		return domain.Principal{}, apperrors.NewNotFound("principal", map[string]any{"email": email})
	}
	return p, nil
}

func (d *memoryDirectory) Authenticate(ctx context.Context, email, password string) (domain.Principal, error) {
	p, err := d.Lookup(ctx, email)
	if err != nil {
		return domain.Principal{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := verifySecret(p.PasswordHash, password); err != nil {
		return domain.Principal{}, apperrors.NewUnauthorized("invalid credentials")
	}
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
