package metrics

import (
	"strings"
	"testing"

	"github.com/copyout/copyout-go"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats copyout.Stats

func (f fixedStats) Stats() copyout.Stats {
	return copyout.Stats(f)
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func labels(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestCollector(t *testing.T) {
	t.Run("reports a dispatcher", func(t *testing.T) {
		d, err := copyout.New(copyout.NewReaderSource(strings.NewReader("a\nbb\nccc\n")),
			copyout.WithInitialCapacity(2), copyout.WithMinRead(2))
		require.NoError(t, err)
		require.Equal(t, copyout.StatusEndOfStream, d.RunToCompletion(nil).Status)

		c := NewCollector("test")
		c.Track("orders", d)
		reg := prometheus.NewPedanticRegistry()
		require.NoError(t, reg.Register(c))

		mfs := gather(t, reg)
		rows := mfs["test_copyout_rows_total"]
		require.NotNil(t, rows)
		require.Len(t, rows.GetMetric(), 1)
		assert.Equal(t, dto.MetricType_COUNTER, rows.GetType())
		assert.Equal(t, float64(3), rows.GetMetric()[0].GetCounter().GetValue())
		assert.Equal(t, "orders", labels(rows.GetMetric()[0])["stream"])

		assert.Equal(t, float64(6), mfs["test_copyout_row_bytes_total"].GetMetric()[0].GetCounter().GetValue())
		assert.Greater(t, mfs["test_copyout_buffer_grows_total"].GetMetric()[0].GetCounter().GetValue(), float64(0))
		assert.Equal(t, float64(0), mfs["test_copyout_buffer_capacity_bytes"].GetMetric()[0].GetGauge().GetValue())

		state := mfs["test_copyout_stream_state"].GetMetric()[0]
		assert.Equal(t, map[string]string{"stream": "orders", "state": "EndOfData", "reason": "None"}, labels(state))
		assert.Equal(t, float64(1), state.GetGauge().GetValue())
	})

	t.Run("failure reason label", func(t *testing.T) {
		c := NewCollector("")
		c.Track("a", fixedStats{State: copyout.StateErrored, Reason: copyout.ReasonRowTooLarge, Rows: 7})
		c.Track("b", fixedStats{State: copyout.StateActive, Capacity: 8192})
		reg := prometheus.NewPedanticRegistry()
		require.NoError(t, reg.Register(c))

		mfs := gather(t, reg)
		states := mfs["copyout_stream_state"].GetMetric()
		require.Len(t, states, 2)

		byStream := map[string]map[string]string{}
		for _, m := range states {
			l := labels(m)
			byStream[l["stream"]] = l
		}
		assert.Equal(t, "Errored", byStream["a"]["state"])
		assert.Equal(t, "RowTooLarge", byStream["a"]["reason"])
		assert.Equal(t, "Active", byStream["b"]["state"])
	})

	t.Run("untrack removes the series", func(t *testing.T) {
		c := NewCollector("x")
		c.Track("gone", fixedStats{})
		c.Untrack("gone")
		reg := prometheus.NewPedanticRegistry()
		require.NoError(t, reg.Register(c))

		assert.Empty(t, gather(t, reg))
	})
}
