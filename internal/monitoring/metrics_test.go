package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"festsched/internal/model"
)

func TestSetStatusCounts(t *testing.T) {
	SetStatusCounts(map[model.Status]int{model.Queued: 2, model.Finished: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(eventsByStatus.WithLabelValues("queued")))
	assert.Equal(t, 0.0, testutil.ToFloat64(eventsByStatus.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(eventsByStatus.WithLabelValues("finished")))
}

func TestRecordMutation(t *testing.T) {
	before := testutil.ToFloat64(mutations.WithLabelValues("add", "invalid"))

	RecordMutation("add", "invalid")

	assert.Equal(t, before+1, testutil.ToFloat64(mutations.WithLabelValues("add", "invalid")))
}

func TestRecordRefresh(t *testing.T) {
	before := testutil.ToFloat64(refreshes)
	activeBefore := testutil.ToFloat64(transitions.WithLabelValues("active"))

	RecordRefresh(0.001, []model.Status{model.Active, model.Active})

	assert.Equal(t, before+1, testutil.ToFloat64(refreshes))
	assert.Equal(t, activeBefore+2, testutil.ToFloat64(transitions.WithLabelValues("active")))
}
