package jobqueue

import (
	"syscall"
	"time"
)

// userCPUTime and systemCPUTime report this process's cumulative CPU time,
// for the rusage-utime/rusage-stime stats fields. syscall.Getrusage is the
// only way to get this without shelling out; there's no pack library for
// process resource accounting.
func userCPUTime() time.Duration {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond
}

func systemCPUTime() time.Duration {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond
}
