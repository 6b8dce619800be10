package inference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMeminfo(t *testing.T, totalKB, availableKB int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meminfo")
	content := "MemTotal:       " + itoa(totalKB) + " kB\n" +
		"MemFree:        1024 kB\n" +
		"MemAvailable:   " + itoa(availableKB) + " kB\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestMeminfoCheckerReadings(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		available int64
		expected  MemoryStatus
	}{
		{"plenty of headroom", 16000000, 8000000, MemoryOK},
		{"below warning threshold", 16000000, 1600000, MemoryWarning},
		{"below critical threshold", 16000000, 160000, MemoryCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewMeminfoChecker(WithMeminfoPath(writeMeminfo(t, tt.total, tt.available)))
			assert.Equal(t, tt.expected, checker.CheckMemory())
		})
	}
}

func TestMeminfoCheckerUnreadableIsUnknown(t *testing.T) {
	checker := NewMeminfoChecker(WithMeminfoPath("/does/not/exist"))
	assert.Equal(t, MemoryUnknown, checker.CheckMemory())
}
