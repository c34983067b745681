package files

import (
	"fmt"
	"strings"
	"time"

	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
)

var sizeUnits = map[string]float64{
	"":      1,
	"b":     1,
	"bytes": 1,
	"kb":    1 << 10,
	"mb":    1 << 20,
	"gb":    1 << 30,
}

// sizeRange is an inclusive byte range; nil bounds are open.
type sizeRange struct {
	min, max *float64
}

func newSizeRange(min, max *float64, unit string) (sizeRange, error) {
	factor, ok := sizeUnits[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return sizeRange{}, fmt.Errorf("unknown size_unit %q (use bytes, KB, MB or GB)", unit)
	}
	var r sizeRange
	if min != nil {
		v := *min * factor
		r.min = &v
	}
	if max != nil {
		v := *max * factor
		r.max = &v
	}
	return r, nil
}

func (r sizeRange) contains(size int64) bool {
	n := float64(size)
	if r.min != nil && n < *r.min {
		return false
	}
	if r.max != nil && n > *r.max {
		return false
	}
	return true
}

const dateLayout = "2006-01-02"

// dateRange is an inclusive upload-time window; zero bounds are open.
type dateRange struct {
	from, to time.Time
}

func newDateRange(from, to string) (dateRange, error) {
	var r dateRange
	var err error
	if from != "" {
		if r.from, _, err = parseDate(from); err != nil {
			return r, fmt.Errorf("invalid date_from: %w", err)
		}
	}
	if to != "" {
		var dateOnly bool
		if r.to, dateOnly, err = parseDate(to); err != nil {
			return r, fmt.Errorf("invalid date_to: %w", err)
		}
		if dateOnly {
			r.to = r.to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return r, nil
}

func parseDate(s string) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if t, err = time.Parse(dateLayout, s); err == nil {
		return t, true, nil
	}
	if t, err = time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, fmt.Errorf("%q is not YYYY-MM-DD", s)
}

func (r dateRange) contains(t time.Time) bool {
	if !r.from.IsZero() && t.Before(r.from) {
		return false
	}
	if !r.to.IsZero() && t.After(r.to) {
		return false
	}
	return true
}

// typeFilter matches a declared media type against a category alias.
// An empty name matches everything.
type typeFilter struct {
	set      bool
	category contentstore.Category
}

func newTypeFilter(name string) typeFilter {
	name = strings.TrimSpace(name)
	if name == "" {
		return typeFilter{}
	}
	return typeFilter{set: true, category: contentstore.ResolveCategory(name)}
}

func (f typeFilter) matches(file *db.File) bool {
	return !f.set || f.category.Matches(file.FileType)
}

func nameContains(file *db.File, substr string) bool {
	return strings.Contains(strings.ToLower(file.OriginalFilename), strings.ToLower(substr))
}
