package sandbox

import (
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolateMeta is the parsed form of the key:value meta file isolate writes
// after every run.
type isolateMeta struct {
	Time     float64 // cpu seconds
	WallTime float64
	MaxRSS   int // KB
	CgMem    int // KB, present under --cg-mem
	ExitCode int
	ExitSig  int
	Status   string // "RE", "SG", "TO", "XX"; empty on clean exit
	Message  string

	hasExitCode bool
	hasExitSig  bool
}

func parseIsolateMeta(data string) isolateMeta {
	var m isolateMeta
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch key {
		case "time":
			m.Time, _ = strconv.ParseFloat(value, 64)
		case "time-wall":
			m.WallTime, _ = strconv.ParseFloat(value, 64)
		case "max-rss":
			m.MaxRSS, _ = strconv.Atoi(value)
		case "cg-mem":
			m.CgMem, _ = strconv.Atoi(value)
		case "exitcode":
			m.ExitCode, _ = strconv.Atoi(value)
			m.hasExitCode = true
		case "exitsig":
			m.ExitSig, _ = strconv.Atoi(value)
			m.hasExitSig = true
		case "status":
			m.Status = value
		case "message":
			m.Message = value
		}
	}
	return m
}

// classify turns an isolate meta record into the telemetry half of a
// Result. A signal kill with the memory cap reached classifies as MLE, any
// other signal or non-zero exit as a runtime error.
func (m isolateMeta) classify(limits Limits) Result {
	res := Result{
		Time:     m.Time,
		MemoryKB: m.memoryKB(),
	}

	switch m.Status {
	case "TO":
		sig := signalName(syscall.SIGKILL)
		res.Signal = &sig
		res.Message = MessageTLE
	case "SG":
		sig := signalName(syscall.Signal(m.ExitSig))
		res.Signal = &sig
		if limits.MemoryKB > 0 && res.MemoryKB >= limits.MemoryKB {
			res.Message = MessageMLE
		} else {
			res.Message = MessageRE
		}
	case "RE":
		code := m.ExitCode
		res.ExitCode = &code
		res.Message = MessageRE
	default:
		code := 0
		if m.hasExitCode {
			code = m.ExitCode
		}
		res.ExitCode = &code
		if code == 0 {
			res.Message = MessageOK
		} else {
			res.Message = MessageRE
		}
	}
	return res
}

func (m isolateMeta) memoryKB() int {
	if m.CgMem > 0 {
		return m.CgMem
	}
	return m.MaxRSS
}

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return "SIG" + strconv.Itoa(int(sig))
}
