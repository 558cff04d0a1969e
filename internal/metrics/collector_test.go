package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector()

	c.RecordRecords(OpInsertBatch, 10*time.Millisecond, 100, nil)
	c.RecordRecords(OpInsertBatch, 30*time.Millisecond, 50, errors.New("boom"))
	c.RecordTiming(OpIngestRun, time.Second, nil)

	snap := c.Snapshot()

	require.NotNil(t, snap.InsertBatch)
	assert.Equal(t, int64(2), snap.InsertBatch.Count)
	assert.Equal(t, int64(1), snap.InsertBatch.Errors)
	assert.Equal(t, int64(40), snap.InsertBatch.TotalTimeMs)
	assert.Equal(t, 20.0, snap.InsertBatch.AvgTimeMs)
	assert.Equal(t, int64(10), snap.InsertBatch.MinTimeMs)
	assert.Equal(t, int64(30), snap.InsertBatch.MaxTimeMs)
	assert.Equal(t, int64(150), *snap.InsertBatch.TotalRecords)
	assert.Equal(t, int64(100), *snap.InsertBatch.MaxRecords)

	require.NotNil(t, snap.IngestRun)
	assert.Equal(t, int64(0), *snap.IngestRun.TotalRecords)

	assert.Nil(t, snap.ReadPage)
	assert.Nil(t, snap.DeleteDataset)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpReadPage, time.Millisecond, nil)
	c.RecordRecords(OpInsertBatch, time.Millisecond, 1, nil)
}

func TestCollector_ExportsToPrometheus(t *testing.T) {
	c := NewCollector()
	before := testutil.ToFloat64(OperationRecords.WithLabelValues(OpDeleteDataset))

	c.RecordRecords(OpDeleteDataset, time.Millisecond, 42, nil)

	assert.Equal(t, before+42, testutil.ToFloat64(OperationRecords.WithLabelValues(OpDeleteDataset)))
}
