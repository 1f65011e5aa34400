package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestDraftWhere(t *testing.T) {
	sector := int64(7)
	author := int64(42)
	period := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	where, args := draftWhere(DraftFilter{
		SectorID:   &sector,
		Period:     &period,
		EmployeeID: &author,
		Statuses:   []string{StatusPending},
	})

	assert.Equal(t, "1=1 AND d.sector_id = $1 AND d.period = $2 AND d.employee_id = $3 AND d.status = ANY($4)", where)
	assert.Equal(t, []any{sector, period, author, []string{StatusPending}}, args)

	where, args = draftWhere(DraftFilter{})
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)
}

func TestPatchEmpty(t *testing.T) {
	name := "Logistics"
	assert.True(t, SectorPatch{}.Empty())
	assert.False(t, SectorPatch{Name: &name}.Empty())

	assert.True(t, EmployeePatch{}.Empty())
	assert.False(t, EmployeePatch{SectorSet: true}.Empty())

	assert.True(t, IndicatorPatch{}.Empty())
	assert.False(t, IndicatorPatch{ResponsibleSet: true}.Empty())
}

func TestStorageErrorClassification(t *testing.T) {
	down := storageError(&pgconn.PgError{Code: "08006"}, "failed to list sectors")
	assert.Equal(t, errors.ErrCodeStorageUnavailable, errors.CodeOf(down))

	broken := storageError(fmt.Errorf("syntax"), "failed to list sectors")
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(broken))

	assert.Equal(t, errors.ErrCodeStorageUnavailable, errors.CodeOf(storageError(context.DeadlineExceeded, "x")))
}

func TestClassifyTxError(t *testing.T) {
	assert.NoError(t, classifyTxError(nil))

	domain := errors.NotFound("draft", 9)
	assert.Same(t, domain, classifyTxError(domain))

	wrapped := fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "40001"})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(classifyTxError(wrapped)))

	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(classifyTxError(fmt.Errorf("begin transaction: boom"))))
}

func TestErrDuplicateIsConflict(t *testing.T) {
	assert.True(t, errors.IsCode(ErrDuplicate, errors.ErrCodeConflict))
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sentinel", ErrDuplicate, true},
		{"wrapped sentinel", fmt.Errorf("create sector: %w", ErrDuplicate), true},
		{"serialization failure", classifyTxError(&pgconn.PgError{Code: "40001"}), false},
		{"other conflict", errors.New(errors.ErrCodeConflict, "draft changed"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicate(tt.err))
		})
	}
}
