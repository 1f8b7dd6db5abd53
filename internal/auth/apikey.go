// Package auth loads the API key file and maps keys to roles.
package auth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role decides what a key may do: readers poll tasks and query events,
// admins additionally submit and cancel.
type Role string

const (
	RoleReader Role = "reader"
	RoleAdmin  Role = "admin"
)

// CanMutate reports whether the role may submit or cancel tasks.
func (r Role) CanMutate() bool { return r == RoleAdmin }

// ParseRole normalizes and validates a role string. Empty means admin,
// matching key files written before roles existed.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return RoleAdmin, nil
	case RoleReader:
		return RoleReader, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q (want reader or admin)", s)
	}
}

// APIKeyAuth holds the loaded key table.
type APIKeyAuth struct {
	headerName string
	keys       map[string]Role
}

type keyFileEntry struct {
	ID          string `yaml:"id"`
	Key         string `yaml:"key"`
	Description string `yaml:"description"`
	Role        string `yaml:"role"`
}

func LoadAPIKeys(keysFile string, headerName string) (*APIKeyAuth, error) {
	if strings.TrimSpace(headerName) == "" {
		headerName = "X-API-Key"
	}
	if keysFile == "" {
		return nil, fmt.Errorf("api key auth enabled but keys_file is empty")
	}
	b, err := os.ReadFile(keysFile)
	if err != nil {
		return nil, fmt.Errorf("read api keys file: %w", err)
	}
	var entries []keyFileEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse api keys file: %w", err)
	}

	keys := make(map[string]Role, len(entries))
	for i, e := range entries {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			continue
		}
		role, err := ParseRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("api keys file entry %d (%s): %w", i, e.ID, err)
		}
		if _, dup := keys[key]; dup {
			return nil, fmt.Errorf("api keys file entry %d (%s): duplicate key", i, e.ID)
		}
		keys[key] = role
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("api keys file contains no keys")
	}
	return &APIKeyAuth{headerName: headerName, keys: keys}, nil
}

func (a *APIKeyAuth) HeaderName() string { return a.headerName }

// Lookup returns the role for key and whether the key is known.
func (a *APIKeyAuth) Lookup(key string) (Role, bool) {
	if a == nil {
		return "", false
	}
	role, ok := a.keys[key]
	return role, ok
}
