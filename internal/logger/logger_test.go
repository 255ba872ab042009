package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := base.WithContext(context.Background())
	ctx = SetRequestID(ctx, "req-1")
	ctx = SetDoctorID(ctx, "doc-1")
	ctx = SetVisitID(ctx, "visit-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "doc-1", GetDoctorID(ctx))

	CtxInfo(ctx, "stored %d", 3)
	line := lastLine(t, &buf)
	assert.Equal(t, "stored 3", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "test", line["service"])
	assert.Equal(t, "req-1", line[FieldRequestID])
	assert.Equal(t, "visit-1", line[FieldVisitID])
	assert.Contains(t, line, "timestamp")
}

func TestEntryAddsMetricFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := New(&Config{Level: "info", Format: "json", Output: &buf}).WithContext(context.Background())

	With(Fields{FieldDurationMs: 12}).WithCount(4).WithStatus("ok").Warn(ctx, "done")
	line := lastLine(t, &buf)
	assert.Equal(t, "warning", line["level"])
	assert.EqualValues(t, 12, line[FieldDurationMs])
	assert.EqualValues(t, 4, line[FieldCount])
	assert.Equal(t, "ok", line[FieldStatus])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	ctx := New(&Config{Level: "warn", Format: "text", Output: &buf}).WithContext(context.Background())

	CtxInfo(ctx, "hidden")
	assert.Zero(t, buf.Len())
	CtxError(ctx, "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}
