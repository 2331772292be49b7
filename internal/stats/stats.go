package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater maintains expvar counters for the live core and serves them
// on /debug/vars. Updates flow through a channel so callers never block on
// the expvar map.
type StatsUpdater struct {
	vars    *expvar.Map
	updates chan metricDelta
	done    chan struct{}
}

type metricDelta struct {
	name  string
	delta int64
}

func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:    expvar.NewMap("chatwire-stats"),
		updates: make(chan metricDelta, 512),
		done:    make(chan struct{}),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.serveVars))

	startTime := time.Now()
	su.vars.Set("UptimeMillis", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))

	return su
}

func (su *StatsUpdater) serveVars(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	vars := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		vars[kv.Key] = value
	})

	json.NewEncoder(w).Encode(vars)
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, expvar.NewInt(name))
}

func (su *StatsUpdater) Incr(name string) {
	su.update(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.update(name, -1)
}

func (su *StatsUpdater) update(name string, delta int64) {
	select {
	case su.updates <- metricDelta{name: name, delta: delta}:
	case <-su.done:
	}
}

func (su *StatsUpdater) Run() {
	go func() {
		for {
			select {
			case m := <-su.updates:
				if counter, ok := su.vars.Get(m.name).(*expvar.Int); ok {
					counter.Add(m.delta)
				}
			case <-su.done:
				return
			}
		}
	}()
}

func (su *StatsUpdater) Stop() {
	close(su.done)
}
