package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("test")

	c.RecordDirective("recall_memory", "dispatched")
	c.RecordDirective("recall_memory", "dispatched")
	c.RecordSearch(0)
	c.RecordSearch(3)
	c.RecordMalformedLines(2)
	c.RecordMalformedLines(0)
	c.RecordPersistence("save", errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Directives.WithLabelValues("recall_memory", "dispatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.MemorySearches.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.MemorySearches.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.MalformedLines))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StorePersistence.WithLabelValues("save", "error")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTurn("user")
		c.RecordWrite()
		c.RecordRecallLimit()
		c.RecordTransportError()
	})
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")
	a.RecordWrite()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.MemoryWrites))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MemoryWrites))
}

func TestRecordHTTP(t *testing.T) {
	c := NewCollector("test")
	c.RecordHTTP("GET", "/api/memory", 200, 0)
	c.RecordHTTP("GET", "/api/memory", 200, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/memory", "200")))

	var nilCollector *Collector
	nilCollector.RecordHTTP("GET", "/", 200, 0)
}
