package store_test

import (
	"github.com/mossy-p/reception-signaling/internal/models"
	"github.com/mossy-p/reception-signaling/internal/registry"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
)

type staticEntry struct {
	Role     models.Role
	Identity models.Identity
}

type staticDirectory map[string]staticEntry

func (d staticDirectory) Lookup(id string) (registry.Connection, error) {
	entry, ok := d[id]
	if !ok {
		return registry.Connection{}, apperrors.ErrNotFound
	}
	return registry.Connection{ID: id, Role: entry.Role, Identity: entry.Identity}, nil
}
