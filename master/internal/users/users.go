// Package users is a file-backed user directory. Larger deployments
// put a real directory service behind the same resolver interface;
// the file keeps that interface honest without one.
package users

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vantagehq/vantage/pkg/types"
)

// Directory resolves customer ids to users.
type Directory struct {
	mu   sync.RWMutex
	byID map[string]types.User
}

// Load reads the user directory from a yaml file holding a list of
// users.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("users: read file: %w", err)
	}
	var list []types.User
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("users: parse yaml: %w", err)
	}

	byID := make(map[string]types.User, len(list))
	for i, u := range list {
		if u.ID == "" {
			return nil, fmt.Errorf("users: users[%d]: id is required", i)
		}
		if _, dup := byID[u.ID]; dup {
			return nil, fmt.Errorf("users: duplicate user id %q", u.ID)
		}
		byID[u.ID] = u
	}
	return &Directory{byID: byID}, nil
}

// UserByID implements dispatch.UserResolver.
func (d *Directory) UserByID(ctx context.Context, id string) (types.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return types.User{}, fmt.Errorf("users: unknown user %q", id)
	}
	return u, nil
}
