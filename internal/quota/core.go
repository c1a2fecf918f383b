package quota

import (
	"context"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
	"github.com/aiorreal/quota-service/internal/models"
	"github.com/aiorreal/quota-service/internal/plan"
	"github.com/aiorreal/quota-service/internal/store"
)

// Core is the quota and subscription state engine. It carries the immutable
// plan catalog and the document store; construct once at startup and pass
// explicitly.
type Core struct {
	store   store.Store
	catalog *plan.Catalog
}

// New creates a quota core on the given store and catalog.
func New(st store.Store, catalog *plan.Catalog) *Core {
	if catalog == nil {
		catalog = plan.Default()
	}
	return &Core{store: st, catalog: catalog}
}

// Catalog exposes the plan catalog for read-only lookups.
func (c *Core) Catalog() *plan.Catalog {
	return c.catalog
}

// EnsureUser upserts the record anchoring a user in the quota domain.
// Users are created lazily and never deleted here.
func (c *Core) EnsureUser(ctx context.Context, userID, email string) error {
	if userID == "" {
		return apperrors.ValidationError{Field: "userId", Message: "required"}
	}

	var existing models.User
	found, err := c.store.Get(ctx, models.CollectionUsers, userID, &existing)
	if err != nil {
		return err
	}

	now := models.NowISO()
	u := models.User{ID: userID, Email: email, UpdatedAt: now}
	if !found {
		u.CreatedAt = now
	}
	return c.store.Set(ctx, models.CollectionUsers, userID, u, true)
}
