package event_test

import "time"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
