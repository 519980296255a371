package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.ItemProcessed("dealernet", "fetch", "updated")
	m.ItemProcessed("dealernet", "fetch", "updated")
	m.ItemProcessed("dealernet", "fetch", "error")
	m.Reauthenticated("dealernet", true)
	m.Reauthenticated("dealernet", false)
	m.JobFinished("dealernet", "extract", "completed", 90*time.Second)
	m.EventPublished("CATALOG_ITEM_UPDATED", true)
	m.SetOutboxBacklog(4, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("dealernet", "fetch", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("dealernet", "fetch", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReauthTotal.WithLabelValues("dealernet", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("dealernet", "extract", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("CATALOG_ITEM_UPDATED", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.OutboxBacklog.WithLabelValues("pending")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.JobDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ItemProcessed("p", "browser", "matched")
		m.Reauthenticated("p", true)
		m.JobFinished("p", "discover", "failed", time.Second)
		m.EventPublished("E", false)
		m.SetOutboxBacklog(0, 0)
	})
}
