package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
)

func TestCanAccessSector(t *testing.T) {
	const own, foreign, assigned = int64(7), int64(9), int64(11)

	tests := []struct {
		name  string
		actor Actor
		want  map[int64]bool
	}{
		{"reader", Actor{ID: 1, Level: 1, SectorID: idPtr(own)}, map[int64]bool{own: true, foreign: false, assigned: false}},
		{"contributor", Actor{ID: 1, Level: 2, SectorID: idPtr(own)}, map[int64]bool{own: true, foreign: false, assigned: true}},
		{"supervisor", Actor{ID: 1, Level: 3, SectorID: idPtr(own)}, map[int64]bool{own: true, foreign: false, assigned: true}},
		{"management", Actor{ID: 1, Level: 4}, map[int64]bool{own: true, foreign: true, assigned: true}},
		{"admin", Actor{ID: 1, Level: 5}, map[int64]bool{own: true, foreign: true, assigned: true}},
		{"no sector", Actor{ID: 1, Level: 2}, map[int64]bool{own: false, foreign: false, assigned: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for sector, want := range tt.want {
				assert.Equal(t, want, CanAccessSector(tt.actor, sector, []int64{assigned}), "sector %d", sector)
			}
		})
	}
}

func TestCanFillIndicator(t *testing.T) {
	const own, foreign = int64(7), int64(9)
	self, other := idPtr(1), idPtr(2)

	tests := []struct {
		name        string
		level       int
		sector      int64
		responsible *int64
		want        bool
	}{
		{"reader own unowned", 1, own, nil, false},
		{"contributor own unowned", 2, own, nil, true},
		{"contributor own self", 2, own, self, true},
		{"contributor own other", 2, own, other, false},
		{"contributor foreign self", 2, foreign, self, false},
		{"supervisor own unowned", 3, own, nil, true},
		{"supervisor own other", 3, own, other, false},
		{"supervisor foreign self", 3, foreign, self, true},
		{"supervisor foreign unowned", 3, foreign, nil, false},
		{"management foreign other", 4, foreign, other, true},
		{"admin foreign other", 5, foreign, other, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Actor{ID: 1, Level: tt.level, SectorID: idPtr(own)}
			assert.Equal(t, tt.want, CanFillIndicator(a, tt.sector, tt.responsible))
		})
	}
}

func TestCanCreateOrModifyIdentity(t *testing.T) {
	for actor := 1; actor <= 5; actor++ {
		for target := 1; target <= 5; target++ {
			want := actor == 5 || (actor == 4 && target < 4)
			assert.Equal(t, want, CanCreateOrModifyIdentity(Actor{Level: actor}, target), "actor %d target %d", actor, target)
		}
	}
}

func TestParsePeriod(t *testing.T) {
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2026-02", want: feb},
		{in: "2026-02-01", want: feb},
		{in: "2026-02-28", want: feb},
		{in: " 2026-02 ", want: feb},
		{in: "", wantErr: true},
		{in: "2026-2", wantErr: true},
		{in: "2026-02-30", wantErr: true},
		{in: "2026-13", wantErr: true},
		{in: "02/2026", wantErr: true},
		{in: "2026-02-01T00:00:00Z", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "2026-02-01", FormatPeriod(got))
		})
	}
}
