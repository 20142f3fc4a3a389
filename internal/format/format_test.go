package format

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"clientportal/internal/model"
)

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		amount string
		code   string
		want   string
	}{
		{"1234.5", "USD", "$1,234.50"},
		{"0", "USD", "$0.00"},
		{"-1234.5", "USD", "-$1,234.50"},
		{"1000000", "usd", "$1,000,000.00"},
		{"1234.5", "", "$1,234.50"},
		{"99.999", "EUR", "€100.00"},
		{"1234", "JPY", "¥1,234"},
		{"12.5", "ABC", "ABC 12.50"},
	}

	for _, tt := range tests {
		t.Run(tt.amount+tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCurrency(decimal.RequireFromString(tt.amount), tt.code))
		})
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2024, time.January, 2, 15, 4, 0, 0, time.UTC)
	assert.Equal(t, "1/2/2024", FormatDate(d, DateShort))
	assert.Equal(t, "January 2, 2024", FormatDate(d, DateLong))
	assert.Equal(t, "Jan 2, 2024, 03:04 PM", FormatDateTime(d))
}

func TestProgressColor(t *testing.T) {
	tests := map[int]string{
		80:  "bg-green-500",
		100: "bg-green-500",
		150: "bg-green-500",
		75:  "bg-green-500",
		50:  "bg-blue-500",
		25:  "bg-yellow-500",
		10:  "bg-gray-300",
		0:   "bg-gray-300",
		-5:  "bg-gray-300",
	}
	for p, want := range tests {
		assert.Equal(t, want, ProgressColor(p), "progress %d", p)
	}
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0, ClampPercent(-1))
	assert.Equal(t, 42, ClampPercent(42))
	assert.Equal(t, 100, ClampPercent(101))
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "In Progress", FormatStatus("in_progress"))
	assert.Equal(t, "Pending Approval", FormatStatus("pending_approval"))
	assert.Equal(t, "Draft", FormatStatus("draft"))
	assert.Equal(t, "", FormatStatus(""))
}

func TestColors_Fallback(t *testing.T) {
	assert.Equal(t, "bg-purple-100 text-purple-800", StatusColor("review"))
	assert.Equal(t, "bg-gray-100 text-gray-800", StatusColor("unknown"))
	assert.Equal(t, "bg-red-100 text-red-800", PriorityColor("urgent"))
	assert.Equal(t, "bg-gray-100 text-gray-800", PriorityColor(""))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "JS", Initials("John Smith"))
	assert.Equal(t, "AU", Initials("admin user extra"))
	assert.Equal(t, "M", Initials("madonna"))
	assert.Equal(t, "", Initials("  "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "Website...", Truncate("Website redesign", 7))
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysUntil(now.Add(2*time.Hour), now))
	assert.Equal(t, 3, DaysUntil(now.Add(72*time.Hour), now))
	assert.Equal(t, -2, DaysUntil(now.Add(-48*time.Hour), now))

	assert.True(t, IsOverdue(now.Add(-48*time.Hour), now))
	assert.False(t, IsOverdue(now.Add(time.Hour), now))
}

func TestProjectProgress(t *testing.T) {
	assert.Equal(t, 0, ProjectProgress(nil))

	ms := []model.ProjectMilestone{
		{Status: model.MilestoneCompleted},
		{Status: model.MilestoneInProgress},
		{Status: model.MilestonePending},
	}
	assert.Equal(t, 33, ProjectProgress(ms))

	ms[1].Status = model.MilestoneCompleted
	assert.Equal(t, 67, ProjectProgress(ms))
}
