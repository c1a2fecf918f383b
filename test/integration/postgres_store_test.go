//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aiorreal/quota-service/config"
	"github.com/aiorreal/quota-service/internal/database"
	"github.com/aiorreal/quota-service/internal/models"
	"github.com/aiorreal/quota-service/internal/store"
)

func startPostgres(t *testing.T, ctx context.Context) *database.DB {
	t.Helper()
	if !containersAvailable() {
		t.Skip("container runtime not available; skipping container-based integration test")
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_DB": "quota", "POSTGRES_USER": "quota", "POSTGRES_PASSWORD": "password"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, _ := pg.Host(ctx)
	port, _ := pg.MappedPort(ctx, "5432")
	dsn := "postgres://quota:password@" + host + ":" + port.Port() + "/quota?sslmode=disable"

	cfg := config.DatabaseConfig{URL: dsn, MaxConns: 5, MinConns: 1, MaxConnLifetime: time.Hour, MaxConnIdleTime: 30 * time.Minute}
	db, err := database.New(ctx, cfg)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close(context.Background()) })

	if err := db.Health(ctx); err != nil {
		t.Fatalf("db health: %v", err)
	}
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	db := startPostgres(t, ctx)

	st := store.New(db)
	pg, ok := st.(*store.PostgresStore)
	if !ok {
		t.Fatalf("expected PostgresStore, got %T", st)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// Set and Get
	w := models.Wallet{
		ID: "w1", UserID: "u1", PlanID: "free", QuotaTotal: 2,
		Status: models.WalletStatusActive, PeriodEnd: "2099-01-01T00:00:00Z",
	}
	if err := st.Set(ctx, models.CollectionWallets, w.ID, w, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got models.Wallet
	found, err := st.Get(ctx, models.CollectionWallets, "w1", &got)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.UserID != "u1" || got.QuotaTotal != 2 {
		t.Fatalf("round trip: %+v", got)
	}

	// Merge preserves untouched fields
	if err := st.Set(ctx, models.CollectionWallets, "w1", map[string]any{"quotaUsed": 1}, true); err != nil {
		t.Fatalf("merge Set: %v", err)
	}
	found, err = st.Get(ctx, models.CollectionWallets, "w1", &got)
	if err != nil || !found {
		t.Fatalf("Get after merge: %v", err)
	}
	if got.QuotaUsed != 1 || got.QuotaTotal != 2 || got.UserID != "u1" {
		t.Fatalf("merge result: %+v", got)
	}

	// Query by field
	var wallets []models.Wallet
	err = st.Query(ctx, models.CollectionWallets,
		[]store.Filter{store.Eq("userId", "u1"), store.Eq("status", models.WalletStatusActive)},
		&store.Order{Field: "periodEnd", Desc: true}, 0, &wallets)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(wallets) != 1 {
		t.Fatalf("query results: %d", len(wallets))
	}

	// Transactional read-modify-write
	err = st.RunTransaction(ctx, func(tx store.Tx) error {
		var tw models.Wallet
		found, err := tx.Get(models.CollectionWallets, "w1", &tw)
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("wallet missing inside tx")
		}
		tw.QuotaUsed++
		tx.Set(models.CollectionWallets, "w1", tw, false)
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	found, err = st.Get(ctx, models.CollectionWallets, "w1", &got)
	if err != nil || !found || got.QuotaUsed != 2 {
		t.Fatalf("tx result: found=%v err=%v wallet=%+v", found, err, got)
	}

	// Missing document
	found, err = st.Get(ctx, models.CollectionWallets, "nope", &got)
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if found {
		t.Fatal("missing doc reported found")
	}
}
