package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDomainMetrics_Registered(t *testing.T) {
	for _, c := range []prometheus.Collector{IndexRebuilds, IndexRebuildDuration, IndexPassages, ChatAnswers, NotifyEvents} {
		if err := prometheus.Register(c); err == nil {
			t.Fatalf("collector %T should already be registered", c)
		}
	}
}

func TestDomainMetrics_Count(t *testing.T) {
	before := testutil.ToFloat64(ChatAnswers.WithLabelValues("ok"))
	ChatAnswers.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(ChatAnswers.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("chat_answers_total{ok} = %v, want %v", got, before+1)
	}

	IndexPassages.WithLabelValues("bio-tutor").Set(3)
	if got := testutil.ToFloat64(IndexPassages.WithLabelValues("bio-tutor")); got != 3 {
		t.Fatalf("index_passages = %v", got)
	}
}
