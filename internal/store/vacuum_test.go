package store

import (
	"context"
	"testing"
	"time"
)

func TestVacuumIfNeeded(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{"never vacuumed", nil, true},
		{"31 days ago", ptrTime(now.Add(-31 * 24 * time.Hour)), true},
		{"1 day ago", ptrTime(now.Add(-24 * time.Hour)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openTestStore(t)
			st.now = func() time.Time { return now }
			ctx := context.Background()

			if tt.last != nil {
				if err := st.setMetaTime(ctx, metadataKeyLastVacuum, *tt.last); err != nil {
					t.Fatalf("setMetaTime: %v", err)
				}
			}

			vacuumed, err := st.VacuumIfNeeded(ctx)
			if err != nil {
				t.Fatalf("VacuumIfNeeded: %v", err)
			}
			if vacuumed != tt.want {
				t.Errorf("vacuumed = %v, want %v", vacuumed, tt.want)
			}
		})
	}
}

func TestVacuumIfNeeded_RecordsRun(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.VacuumIfNeeded(ctx); err != nil {
		t.Fatalf("first VacuumIfNeeded: %v", err)
	}
	vacuumed, err := st.VacuumIfNeeded(ctx)
	if err != nil {
		t.Fatalf("second VacuumIfNeeded: %v", err)
	}
	if vacuumed {
		t.Error("expected second call to be skipped")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
