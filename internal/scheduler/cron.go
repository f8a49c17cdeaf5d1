package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard five-field expressions and descriptors such as
// @hourly and @every 30m.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron expression. "@every" also accepts a day
// suffix ("@every 7d"), which time.ParseDuration does not.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty cron expression")
	}
	if d, ok := strings.CutPrefix(expr, "@every "); ok {
		every, err := parseEveryDuration(strings.TrimSpace(d))
		if err != nil {
			return nil, err
		}
		return cron.Every(every), nil
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// ValidateCronExpression validates a cron expression
func ValidateCronExpression(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}

func parseEveryDuration(duration string) (time.Duration, error) {
	var d time.Duration
	if days, ok := strings.CutSuffix(duration, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", duration)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(duration); err != nil {
			return 0, fmt.Errorf("invalid duration: %s", duration)
		}
	}
	if d < time.Second {
		return 0, fmt.Errorf("duration must be at least 1s: %s", duration)
	}
	return d, nil
}
