//go:build integration

package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joseph-ayodele/casting-aggregator/internal/repository"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository/repotest"
)

var pgStore *repository.Store

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, dsn, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	pgStore, err = repository.Open(ctx, repository.Config{Driver: repository.DriverPostgres, DSN: dsn, MaxConns: 8, DialTimeout: 5 * time.Second}, repotest.Logger())
	if err == nil {
		err = pgStore.Migrate(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare postgres: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	pgStore.Close()
	termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = container.Terminate(termCtx)
	os.Exit(code)
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	dsnFor := func(host string, port nat.Port) string {
		return fmt.Sprintf("postgres://postgres:postgres@%s:%s/casting?sslmode=disable", host, port.Port())
	}
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "casting",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", dsnFor).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return container, "", err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return container, "", err
	}
	return container, dsnFor(host, port), nil
}

func TestPostgresDedupUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	calls := repository.NewCastingCallRepository(pgStore, nil)
	hash := "pg-" + uuid.NewString()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := newRecord(hash)
			ok, _, err := calls.CreateWithOutbox(ctx, rec, newEntry(rec.ID))
			require.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)

	got, err := calls.FindByHash(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, hash, got.ContentHash)
}

func TestPostgresJobsClaimedOnce(t *testing.T) {
	ctx := context.Background()
	jobs := repository.NewJobRepository(pgStore, nil)
	queueName := "pg-" + uuid.NewString()
	now := time.Now().UTC()
	for i := 0; i < 20; i++ {
		_, err := jobs.Enqueue(ctx, queueName, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), now)
		require.NoError(t, err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := jobs.Claim(ctx, queueName, now.Add(time.Second), time.Minute, 3)
				require.NoError(t, err)
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, j := range claimed {
					require.False(t, seen[j.ID], "job %s claimed twice", j.ID)
					seen[j.ID] = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, 20)

	depth, err := jobs.Depth(ctx, queueName)
	require.NoError(t, err)
	require.Equal(t, 20, depth)
}
