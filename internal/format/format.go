// Package format 展示用的格式化函数，统一 en-US
package format

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"clientportal/internal/model"
)

var symbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"AUD": "A$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "CN¥",
	"INR": "₹",
}

// FormatCurrency 1234.5 -> $1,234.50；负数 -$1,234.50
// 未知币种用 ISO 代码当符号
func FormatCurrency(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "USD"
	}

	scale := 2
	symbol := code + " "
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
		if s, ok := symbols[unit.String()]; ok {
			symbol = s
		}
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}

	fixed := amount.StringFixed(int32(scale))
	intPart, frac, _ := strings.Cut(fixed, ".")
	whole, _ := decimal.NewFromString(intPart)
	grouped := message.NewPrinter(language.AmericanEnglish).Sprintf("%d", whole.IntPart())
	if frac != "" {
		grouped += "." + frac
	}
	return sign + symbol + grouped
}

type DateStyle int

const (
	DateShort DateStyle = iota
	DateLong
)

// FormatDate short: 1/2/2024，long: January 2, 2024
func FormatDate(t time.Time, style DateStyle) string {
	if style == DateLong {
		return t.Format("January 2, 2006")
	}
	return t.Format("1/2/2006")
}

func FormatDateTime(t time.Time) string {
	return t.Format("Jan 2, 2006, 03:04 PM")
}

const fallbackColor = "bg-gray-100 text-gray-800"

var statusColors = map[string]string{
	"draft":            "bg-gray-100 text-gray-800",
	"pending":          "bg-yellow-100 text-yellow-800",
	"pending_approval": "bg-yellow-100 text-yellow-800",
	"approved":         "bg-blue-100 text-blue-800",
	"in_progress":      "bg-blue-100 text-blue-800",
	"review":           "bg-purple-100 text-purple-800",
	"revision":         "bg-orange-100 text-orange-800",
	"completed":        "bg-green-100 text-green-800",
	"delivered":        "bg-green-100 text-green-800",
	"cancelled":        "bg-red-100 text-red-800",
	"overdue":          "bg-red-100 text-red-800",
	"paid":             "bg-green-100 text-green-800",
	"sent":             "bg-blue-100 text-blue-800",
	"submitted":        "bg-blue-100 text-blue-800",
	"under_review":     "bg-yellow-100 text-yellow-800",
	"rejected":         "bg-red-100 text-red-800",
	"converted":        "bg-green-100 text-green-800",
}

var priorityColors = map[string]string{
	"low":    "bg-gray-100 text-gray-800",
	"medium": "bg-blue-100 text-blue-800",
	"high":   "bg-orange-100 text-orange-800",
	"urgent": "bg-red-100 text-red-800",
}

func StatusColor(status string) string {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return fallbackColor
}

func PriorityColor(priority string) string {
	if c, ok := priorityColors[priority]; ok {
		return c
	}
	return fallbackColor
}

// ClampPercent 限制在 [0, 100]
func ClampPercent(p int) int {
	return max(0, min(100, p))
}

func ProgressColor(p int) string {
	switch p = ClampPercent(p); {
	case p >= 75:
		return "bg-green-500"
	case p >= 50:
		return "bg-blue-500"
	case p >= 25:
		return "bg-yellow-500"
	default:
		return "bg-gray-300"
	}
}

// FormatStatus in_progress -> In Progress
func FormatStatus(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// Initials 最多两个字母
func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, word := range strings.Fields(name) {
		r := []rune(word)[0]
		b.WriteRune(unicode.ToUpper(r))
		if n++; n == 2 {
			break
		}
	}
	return b.String()
}

func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:max(n, 0)]) + "..."
}

// DaysUntil 向上取整的天数差，过去的日期为负
func DaysUntil(target, now time.Time) int {
	return int(math.Ceil(target.Sub(now).Hours() / 24))
}

func IsOverdue(due, now time.Time) bool {
	return DaysUntil(due, now) < 0
}

// ProjectProgress 已完成里程碑的百分比，没有里程碑为 0
func ProjectProgress(milestones []model.ProjectMilestone) int {
	if len(milestones) == 0 {
		return 0
	}
	done := 0
	for _, m := range milestones {
		if m.Status == model.MilestoneCompleted {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(len(milestones)) * 100))
}
