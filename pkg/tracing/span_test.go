package tracing

import (
	"context"
	"testing"
)

func TestChildSpansInheritTrace(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "training.run", "run-1")
	_, fetch := StartChildSpan(ctx, "fetch")
	fetch.End()
	_, train := StartChildSpan(ctx, "train")
	train.SetAttr("documents", 3)
	train.End()
	root.End()

	if fetch.TraceID != "run-1" || train.TraceID != "run-1" {
		t.Errorf("children did not inherit trace id: %q %q", fetch.TraceID, train.TraceID)
	}
	stages := root.StageDurations()
	if _, ok := stages["fetch"]; !ok {
		t.Error("missing fetch stage")
	}
	if _, ok := stages["train"]; !ok {
		t.Error("missing train stage")
	}
}

func TestDetachedChild(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	if span.TraceID != "" {
		t.Errorf("TraceID = %q, want empty", span.TraceID)
	}
}
