package inference

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// MemoryChecker produces the memory-pressure reading used by the pre-flight
// check before each generation.
type MemoryChecker interface {
	CheckMemory() MemoryStatus
}

// MeminfoChecker derives the reading from /proc/meminfo's MemAvailable,
// against warning/critical thresholds expressed as fractions of total
// memory. On platforms or errors where meminfo cannot be read the status is
// unknown, never critical.
type MeminfoChecker struct {
	path             string
	warningFraction  float64
	criticalFraction float64
}

type MeminfoOption func(*MeminfoChecker)

func WithThresholds(warning, critical float64) MeminfoOption {
	return func(c *MeminfoChecker) {
		if warning > 0 {
			c.warningFraction = warning
		}
		if critical > 0 {
			c.criticalFraction = critical
		}
	}
}

func WithMeminfoPath(path string) MeminfoOption {
	return func(c *MeminfoChecker) {
		c.path = path
	}
}

func NewMeminfoChecker(options ...MeminfoOption) *MeminfoChecker {
	ret := &MeminfoChecker{
		path:             "/proc/meminfo",
		warningFraction:  0.15,
		criticalFraction: 0.05,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (c *MeminfoChecker) CheckMemory() MemoryStatus {
	total, available, err := c.read()
	if err != nil || total == 0 {
		log.Debug().Err(err).Str("path", c.path).Msg("could not read memory info")
		return MemoryUnknown
	}

	fraction := float64(available) / float64(total)
	switch {
	case fraction < c.criticalFraction:
		return MemoryCritical
	case fraction < c.warningFraction:
		return MemoryWarning
	default:
		return MemoryOK
	}
}

func (c *MeminfoChecker) read() (total int64, available int64, err error) {
	f, err := os.Open(c.path)
	if err != nil {
		return 0, 0, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = value
		case "MemAvailable:":
			available = value
		}
	}

	return total, available, scanner.Err()
}

var _ MemoryChecker = (*MeminfoChecker)(nil)

// StaticMemoryChecker always returns the same reading. Used in tests and as
// an override when the host probe is unreliable.
type StaticMemoryChecker struct {
	Status MemoryStatus
}

func (c *StaticMemoryChecker) CheckMemory() MemoryStatus {
	return c.Status
}

var _ MemoryChecker = (*StaticMemoryChecker)(nil)
