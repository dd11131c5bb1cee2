package recipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LocalPrefix marks ids of recipes imported into the local repository.
const LocalPrefix = "web-"

// ErrNotFound is returned when no producer knows the requested id.
var ErrNotFound = errors.New("recipe not found")

// Lookup resolves a recipe id to its full detail.
type Lookup interface {
	LookupByID(ctx context.Context, id string) (Recipe, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, id string) (Recipe, error)

func (f LookupFunc) LookupByID(ctx context.Context, id string) (Recipe, error) {
	return f(ctx, id)
}

// Resolver answers locally imported ids from the repository and everything else
// from the remote lookup.
type Resolver struct {
	local  *Repository
	remote Lookup
}

// NewResolver creates a Resolver. local may be nil.
func NewResolver(local *Repository, remote Lookup) *Resolver {
	return &Resolver{local: local, remote: remote}
}

// LookupByID implements Lookup.
func (r *Resolver) LookupByID(ctx context.Context, id string) (Recipe, error) {
	if strings.HasPrefix(id, LocalPrefix) {
		if r.local == nil {
			return Recipe{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		rec, err := r.local.Get(ctx, id)
		if err != nil {
			return Recipe{}, err
		}
		if rec == nil {
			return Recipe{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return *rec, nil
	}
	return r.remote.LookupByID(ctx, id)
}
