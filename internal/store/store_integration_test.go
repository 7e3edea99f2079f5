package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/mohammad-safakhou/atlast/internal/store"
	"github.com/mohammad-safakhou/atlast/models"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestStoreAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("atlast"),
		tcPostgres.WithUsername("atlast"),
		tcPostgres.WithPassword("atlast"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://atlast:atlast@%s:%s/atlast?sslmode=disable", host, port.Port())

	m, err := migrate.New("file://../../migrations", dsn)
	if err != nil {
		t.Fatalf("migrate init: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer st.Close()

	if _, ok, err := st.ReadRandom(ctx, models.GlobalEasy, nil); err != nil || ok {
		t.Fatalf("expected empty cache, got ok=%v err=%v", ok, err)
	}

	items := []models.ContentItem{
		{Riddle: "r1", Answer: "Paris", Difficulty: "GLOBAL_EASY", Location: models.Location{Name: "Paris", Lat: 48.85, Lng: 2.35},
			ProviderStats: models.ProviderStats{Generator: "gemini", Critic: "cohere", Accepted: true, TotalTimeMs: 900}},
		{Riddle: "r2", Answer: "Pune", Difficulty: "INDIA_EASY", Location: models.Location{Name: "Pune", Lat: 18.52, Lng: 73.85},
			ProviderStats: models.ProviderStats{Generator: "groq", Critic: "skipped", Accepted: true}},
	}
	for _, it := range items {
		if err := st.WriteAccepted(ctx, it); err != nil {
			t.Fatalf("WriteAccepted: %v", err)
		}
	}

	got, ok, err := st.ReadRandom(ctx, models.GlobalEasy, []string{"pune"})
	if err != nil || !ok {
		t.Fatalf("ReadRandom: ok=%v err=%v", ok, err)
	}
	if got.Answer != "Paris" || got.Location.Lat != 48.85 {
		t.Fatalf("unexpected item %+v", got)
	}

	// every tier item excluded: falls back to any tier
	got, ok, err = st.ReadRandom(ctx, models.GlobalEasy, []string{"paris"})
	if err != nil || !ok || got.Answer != "Pune" {
		t.Fatalf("expected any-tier fallback, got %+v ok=%v err=%v", got, ok, err)
	}

	names, err := st.SearchNamesByPrefix(ctx, "p", 10)
	if err != nil {
		t.Fatalf("SearchNamesByPrefix: %v", err)
	}
	if len(names) != 2 || names[0] != "Paris" || names[1] != "Pune" {
		t.Fatalf("unexpected names %v", names)
	}

	n, err := st.PruneOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("PruneOlderThan: n=%d err=%v", n, err)
	}
}
