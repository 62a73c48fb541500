package engine

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// memoryThisJob reads VmRSS from /proc/self/status. Where procfs is not
// available it falls back to the memory obtained by the Go runtime.
func memoryThisJob() int64 {
	if kib, ok := readVmRSS("/proc/self/status"); ok {
		return kib
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Sys / 1024)
}

func readVmRSS(path string) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "VmRSS:"))
		if len(fields) == 0 {
			return 0, false
		}
		kib, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, false
		}
		return kib, true
	}
	return 0, false
}
