package postgres

import (
	"testing"
	"time"

	"fulfillment/internal/analytics"
	"fulfillment/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost dbname=fulfillment sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestInRangeScope(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name    string
		filter  analytics.Filter
		want    []string
		notWant []string
	}{
		{
			name:   "created bounds",
			filter: analytics.Filter{Field: analytics.CreatedAt, Start: &start, End: &end},
			want:   []string{"created_at >= $1", "created_at <= $2", `"orders"."deleted_at" IS NULL`},
		},
		{
			name:   "simulated bounds",
			filter: analytics.Filter{Field: analytics.SimulatedCreatedAt, Start: &start, End: &end},
			want:   []string{"simulated_created_at >= $1", "simulated_created_at <= $2"},
		},
		{
			name:    "lone start",
			filter:  analytics.Filter{Field: analytics.CreatedAt, Start: &start},
			notWant: []string{">=", "<="},
		},
		{
			name:    "lone end",
			filter:  analytics.Filter{Field: analytics.SimulatedCreatedAt, End: &end},
			notWant: []string{">=", "<="},
		},
		{
			name:    "open",
			filter:  analytics.Filter{},
			notWant: []string{">=", "<="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := dryRun(t).Model(&models.Order{}).Scopes(inRange(tt.filter)).Find(&[]models.Order{}).Statement
			sql := stmt.SQL.String()
			for _, s := range tt.want {
				assert.Contains(t, sql, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, sql, s)
			}
		})
	}
}

func TestBucketLayoutsCoverEveryGranularity(t *testing.T) {
	for _, g := range []analytics.Granularity{analytics.Day, analytics.Week, analytics.Month} {
		assert.NotEmpty(t, bucketLayouts[g], string(g))
	}
	assert.Equal(t, "IYYY-IW", bucketLayouts[analytics.Week])
}

func TestDateColumn(t *testing.T) {
	assert.Equal(t, "created_at", dateColumn(analytics.Filter{}))
	assert.Equal(t, "simulated_created_at", dateColumn(analytics.Filter{Field: analytics.SimulatedCreatedAt}))
}
