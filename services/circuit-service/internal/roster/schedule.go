package roster

import "time"

type classTime struct {
	start, end string
}

// Classes run Monday and Wednesday evenings plus a Friday early session.
var classDays = map[time.Weekday]classTime{
	time.Monday:    {"17:30", "19:30"},
	time.Wednesday: {"17:30", "19:30"},
	time.Friday:    {"06:30", "08:00"},
}

// ClassTimes reports the class start and end clocks for a weekday, if one
// runs that day.
func ClassTimes(d time.Weekday) (start, end string, ok bool) {
	ct, ok := classDays[d]
	return ct.start, ct.end, ok
}
