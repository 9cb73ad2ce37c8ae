package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilObservability(t *testing.T) {
	var obs *Observability
	if nil == obs.Log() {
		t.Fatal("nil Observability returned nil Logger")
	}
	obs.Stats().Handshake("ok") // must not panic
	obs.With("k", "v").Log().Debug("nil safe")
}

func TestContextRoundTrip(t *testing.T) {
	obs := &Observability{Logger: NoopLogger()}
	ctx := SetObservability(context.Background(), obs)
	if GetObservability(ctx) != obs {
		t.Error("failed GetObservability control")
	}
	if nil != GetObservability(context.Background()) {
		t.Error("empty context returned non nil Observability")
	}
}

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if nil != err {
		t.Fatalf("failed NewMetrics, got error %v", err)
	}
	m.Handshake("ok")
	m.Handshake("ok")
	m.Packet("in", "rejected")
	m.CustodyOp("store", "ok")

	if v := testutil.ToFloat64(m.handshakes.WithLabelValues("ok")); v != 2 {
		t.Errorf("failed handshakes control, %v != 2", v)
	}
	if v := testutil.ToFloat64(m.packets.WithLabelValues("in", "rejected")); v != 1 {
		t.Errorf("failed packets control, %v != 1", v)
	}

	_, err = NewMetrics(reg)
	if nil == err {
		t.Error("duplicate registration did not fail")
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "json", "debug")
	log.Debug("hello", "k", 1)
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected json output, got %q", buf.String())
	}

	buf.Reset()
	log = NewLogger(&buf, "text", "warn")
	log.Info("filtered")
	if buf.Len() != 0 {
		t.Errorf("info record not filtered at warn level, got %q", buf.String())
	}
}

func TestMiddlewareSetsObservability(t *testing.T) {
	var seen *Observability
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetObservability(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	hdlr := Middleware{TraceIdHeader: "X-Trace-Id", Obs: &Observability{Logger: NoopLogger()}}.Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Trace-Id", "abc")
	rec := httptest.NewRecorder()
	hdlr.ServeHTTP(rec, req)

	if nil == seen {
		t.Fatal("handler did not receive Observability")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("failed status control, %d != %d", rec.Code, http.StatusTeapot)
	}
}
