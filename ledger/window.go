package ledger

import (
	"fmt"
	"time"
)

// Window is a half-open processing interval [Start, End) in unix seconds.
type Window struct {
	Start int64
	End   int64
}

// ResolveWindow determines the time range a tracker pass should query.
//
// An explicit lookback wins over any watermark: the window covers the last
// lookback days ending now. Without a lookback the window resumes one second
// past the watermark lastTS. With neither, there is nothing to anchor the
// window to and an *InvalidWindowError is returned.
func ResolveWindow(label string, lastTS int64, lookbackDays *int, now int64) (Window, error) {
	if lookbackDays != nil {
		if *lookbackDays <= 0 {
			return Window{}, &InvalidWindowError{
				Label:  label,
				Reason: fmt.Sprintf("lookback must be positive, got %d", *lookbackDays),
			}
		}
		return Window{Start: now - int64(*lookbackDays)*86400, End: now}, nil
	}

	if lastTS > 0 {
		return Window{Start: lastTS + 1, End: now}, nil
	}

	return Window{}, &InvalidWindowError{
		Label:  label,
		Reason: "no watermark recorded and no lookback given",
	}
}

// MonthWindow converts a "YYYY-MM" label into the half-open unix range
// covering that calendar month in UTC.
func MonthWindow(month string) (Window, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return Window{}, fmt.Errorf("invalid month %q (want YYYY-MM): %w", month, err)
	}
	end := start.AddDate(0, 1, 0)
	return Window{Start: start.Unix(), End: end.Unix()}, nil
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts < w.End
}
