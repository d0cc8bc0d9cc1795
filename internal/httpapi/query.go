package httpapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

var errInvalidStatus = errors.New("Invalid status filter")

// dateRangeFromQuery parses optional startDate/endDate query params. Both
// must be present for the filter to apply; an end date without a time of day
// is pushed to end of day so the range is inclusive.
func dateRangeFromQuery(c *gin.Context) (*time.Time, *time.Time, error) {
	startStr, endStr := c.Query("startDate"), c.Query("endDate")
	if startStr == "" || endStr == "" {
		return nil, nil, nil
	}
	start, _, err := parseDate(startStr)
	if err != nil {
		return nil, nil, fmt.Errorf("Invalid startDate: %s", startStr)
	}
	end, endDateOnly, err := parseDate(endStr)
	if err != nil {
		return nil, nil, fmt.Errorf("Invalid endDate: %s", endStr)
	}
	if endDateOnly {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return &start, &end, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
