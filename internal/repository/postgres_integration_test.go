//go:build integration

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pesio-ai/be-ops-indicators/internal/database"
	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
	"github.com/pesio-ai/be-ops-indicators/internal/service"
)

const testPeriod = "2026-02"

type pgEnv struct {
	ctx      context.Context
	store    *repository.PostgresStore
	workflow *service.WorkflowService
	admin    service.Actor
}

func setupPostgres(t *testing.T) *pgEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("indicators"),
		postgres.WithUsername("indicators"),
		postgres.WithPassword("indicators"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(ctx, database.Config{
		DSN:             dsn,
		MaxConns:        8,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
		ConnectTimeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	applied, err := db.Migrate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, applied)

	again, err := db.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "migrations apply once")

	store := repository.NewPostgresStore(db)
	hasher := service.NewPasswordHasher(4)
	resolver, err := service.NewResolver(hasher, "placeholder")
	require.NoError(t, err)

	admin := &repository.Employee{
		Name: "Admin", Email: "admin@empresa.com", Level: repository.LevelAdmin,
		Active: true, PasswordHash: "x", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.InTransaction(ctx, func(tx repository.Tx) error {
		return tx.Employees().Create(ctx, admin)
	}))

	return &pgEnv{
		ctx:      ctx,
		store:    store,
		workflow: service.NewWorkflowService(store, resolver, service.NewAuditor(), logger.Nop()),
		admin:    service.Actor{ID: admin.ID, Level: repository.LevelAdmin},
	}
}

func strPtr(s string) *string { return &s }

// pending saves one OEE value as a contributor of the sector, so the draft
// lands as PENDING.
func (e *pgEnv) pending(t *testing.T, sectorID, contributorID int64, value string) {
	t.Helper()
	actor := service.Actor{ID: contributorID, Level: repository.LevelContributor, SectorID: &sectorID}
	_, err := e.workflow.SaveDraft(e.ctx, actor, &service.ValuesRequest{
		Sector:   service.SectorRef{ID: &sectorID},
		Employee: service.EmployeeRef{ID: &contributorID},
		Period:   testPeriod,
		Items: []service.ItemInput{
			{Indicator: service.IndicatorRef{Code: "OEE"}, Value: strPtr(value)},
		},
	})
	require.NoError(t, err)
}

func (e *pgEnv) seedSector(t *testing.T, name string) (sectorID, contributorID int64) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.store.InTransaction(e.ctx, func(tx repository.Tx) error {
		s := &repository.Sector{Name: name, Active: true, CreatedAt: now, UpdatedAt: now}
		if err := tx.Sectors().Create(e.ctx, s); err != nil {
			return err
		}
		c := &repository.Employee{
			Name: name + " Operator", Email: name + ".operator@empresa.com", SectorID: &s.ID,
			Level: repository.LevelContributor, Active: true, PasswordHash: "x",
			CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.Employees().Create(e.ctx, c); err != nil {
			return err
		}
		sectorID, contributorID = s.ID, c.ID
		return nil
	}))
	return sectorID, contributorID
}

func TestPostgresStore(t *testing.T) {
	env := setupPostgres(t)

	t.Run("approving the same key twice keeps one row", func(t *testing.T) {
		sectorID, contributorID := env.seedSector(t, "Production")

		env.pending(t, sectorID, contributorID, "80")
		n, err := env.workflow.ApproveDrafts(env.ctx, env.admin, sectorID, testPeriod)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		env.pending(t, sectorID, contributorID, "87.5")
		n, err = env.workflow.ApproveDrafts(env.ctx, env.admin, sectorID, testPeriod)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		values, err := env.workflow.ListValues(env.ctx, env.admin, sectorID, testPeriod)
		require.NoError(t, err)
		require.Len(t, values, 1)
		assert.Equal(t, "87.5", *values[0].Value)
		assert.Equal(t, "OEE", values[0].IndicatorCode)
	})

	t.Run("concurrent approvals approve each draft once", func(t *testing.T) {
		sectorID, contributorID := env.seedSector(t, "Maintenance")
		env.pending(t, sectorID, contributorID, "42")

		var wg sync.WaitGroup
		counts := make([]int, 2)
		errs := make([]error, 2)
		for i := range counts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				counts[i], errs[i] = env.workflow.ApproveDrafts(env.ctx, env.admin, sectorID, testPeriod)
			}(i)
		}
		wg.Wait()

		var approved, nothing int
		for i := range counts {
			switch {
			case errs[i] == nil:
				assert.Equal(t, 1, counts[i])
				approved++
			case errors.IsCode(errs[i], errors.ErrCodeNothingToApprove):
				nothing++
			default:
				t.Fatalf("unexpected error: %v", errs[i])
			}
		}
		assert.Equal(t, 1, approved)
		assert.Equal(t, 1, nothing)
	})

	t.Run("sector names resolve to one row", func(t *testing.T) {
		err := env.store.InTransaction(env.ctx, func(tx repository.Tx) error {
			now := time.Now()
			if err := tx.Sectors().Create(env.ctx, &repository.Sector{Name: "Quality", Active: true, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
			err := tx.Sectors().Create(env.ctx, &repository.Sector{Name: "QUALITY", Active: true, CreatedAt: now, UpdatedAt: now})
			assert.True(t, repository.IsDuplicate(err), "got %v", err)
			return nil
		})
		require.NoError(t, err)

		manager := service.Actor{ID: env.admin.ID, Level: repository.LevelManagement}
		var ids []int64
		for _, name := range []string{"Logistics", " logistics "} {
			drafts, err := env.workflow.SaveDraft(env.ctx, manager, &service.ValuesRequest{
				Sector:   service.SectorRef{Name: name},
				Employee: service.EmployeeRef{ID: &env.admin.ID},
				Period:   testPeriod,
				Items: []service.ItemInput{
					{Indicator: service.IndicatorRef{Code: "OTIF"}, Value: strPtr("95")},
				},
			})
			require.NoError(t, err)
			require.Len(t, drafts, 1)
			ids = append(ids, drafts[0].SectorID)
		}
		assert.Equal(t, ids[0], ids[1])
	})

	t.Run("a failing item rolls back the whole batch", func(t *testing.T) {
		missing := int64(987654)
		_, err := env.workflow.SaveDraft(env.ctx, env.admin, &service.ValuesRequest{
			Sector:   service.SectorRef{Name: "Warehouse"},
			Employee: service.EmployeeRef{ID: &env.admin.ID},
			Period:   testPeriod,
			Items: []service.ItemInput{
				{Indicator: service.IndicatorRef{Code: "PICK"}, Value: strPtr("10")},
				{Indicator: service.IndicatorRef{ID: &missing}, Value: strPtr("11")},
			},
		})
		require.True(t, errors.IsCode(err, errors.ErrCodeNotFound), "got %v", err)

		require.NoError(t, env.store.View(env.ctx, func(tx repository.Tx) error {
			sector, err := tx.Sectors().FindByName(env.ctx, "Warehouse")
			require.NoError(t, err)
			assert.Nil(t, sector, "autocreated sector is rolled back")

			drafts, err := tx.Drafts().List(env.ctx, repository.DraftFilter{EmployeeID: &env.admin.ID})
			require.NoError(t, err)
			for _, d := range drafts {
				assert.NotEqual(t, "PICK", d.IndicatorCode)
			}
			return nil
		}))
	})
}
