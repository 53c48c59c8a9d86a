package lib

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveCommand("system", "zero", "executed", 0, time.Millisecond)
	m.ObserveCommand("system", "new", "executed", 1, time.Millisecond)
	m.ObserveCommand("system", "new", "skipped", 2, 0)
	m.AddBlocksWritten("system", 10)
	m.AddStashBytes("system", 4096)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("system", "new", "skipped")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.blocksWritten.WithLabelValues("system")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lastIndex.WithLabelValues("system")))

	path := filepath.Join(t.TempDir(), "blockimg.prom")
	require.NoError(t, m.WriteTextfile(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `blockimg_commands_total{outcome="executed",partition="system",type="zero"} 1`)
	assert.Contains(t, string(content), `blockimg_stash_bytes_total{partition="system"} 4096`)
}
