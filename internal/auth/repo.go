package auth

import (
	"context"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
	"github.com/aiorreal/quota-service/internal/models"
	"github.com/aiorreal/quota-service/internal/store"
)

// CollectionServiceKeys holds one document per issued service key, keyed by
// the key's clear-text id prefix.
const CollectionServiceKeys = "service_keys"

const (
	KeyStatusActive  = "active"
	KeyStatusRevoked = "revoked"
)

// KeyRecord is the persisted shape of a service key. The secret is stored
// only as a bcrypt hash, base64 encoded for the document store.
type KeyRecord struct {
	ID         string `json:"id"`
	ServiceID  string `json:"serviceId"`
	Label      string `json:"label,omitempty"`
	Env        string `json:"env,omitempty"`
	SecretHash string `json:"secretHash"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt,omitempty"`
	RevokedAt  string `json:"revokedAt,omitempty"`
}

type Repository struct {
	store store.Store
}

func NewRepository(st store.Store) *Repository {
	return &Repository{store: st}
}

// CreateKey mints a new service key and returns the raw key exactly once;
// only the hash is persisted.
func (r *Repository) CreateKey(ctx context.Context, serviceID, label, env string) (rawKey string, keyID string, err error) {
	if serviceID == "" {
		return "", "", apperrors.ValidationError{Field: "serviceId", Message: "required"}
	}
	id, raw, hash, err := GenerateServiceKey(env)
	if err != nil {
		return "", "", err
	}
	rec := KeyRecord{
		ID:         id,
		ServiceID:  serviceID,
		Label:      label,
		Env:        env,
		SecretHash: base64.StdEncoding.EncodeToString(hash),
		Status:     KeyStatusActive,
		CreatedAt:  models.NowISO(),
	}
	if err := r.store.Set(ctx, CollectionServiceKeys, id, rec, false); err != nil {
		return "", "", err
	}
	return raw, id, nil
}

// VerifyKey checks a raw key against its stored record.
func (r *Repository) VerifyKey(ctx context.Context, rawKey string) (*Principal, error) {
	env, id, secret, ok := ParseServiceKey(rawKey)
	if !ok {
		return nil, apperrors.ErrUnauthorized
	}

	var rec KeyRecord
	found, err := r.store.Get(ctx, CollectionServiceKeys, id, &rec)
	if err != nil {
		return nil, err
	}
	if !found || rec.Status != KeyStatusActive {
		return nil, apperrors.ErrUnauthorized
	}

	hash, err := base64.StdEncoding.DecodeString(rec.SecretHash)
	if err != nil {
		return nil, apperrors.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return nil, apperrors.ErrUnauthorized
	}

	return &Principal{ServiceID: rec.ServiceID, KeyID: rec.ID, Env: env}, nil
}

// RevokeKey marks a key revoked; verification fails from then on.
func (r *Repository) RevokeKey(ctx context.Context, keyID string) error {
	var rec KeyRecord
	found, err := r.store.Get(ctx, CollectionServiceKeys, keyID, &rec)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.ErrNotFound
	}
	patch := map[string]any{
		"status":    KeyStatusRevoked,
		"revokedAt": models.NowISO(),
	}
	return r.store.Set(ctx, CollectionServiceKeys, keyID, patch, true)
}

// ListKeys returns key metadata for a service, never the hashes.
func (r *Repository) ListKeys(ctx context.Context, serviceID string) ([]KeyRecord, error) {
	var recs []KeyRecord
	err := r.store.Query(ctx, CollectionServiceKeys,
		[]store.Filter{store.Eq("serviceId", serviceID)}, nil, 0, &recs)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].SecretHash = ""
	}
	return recs, nil
}
