package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func echoTool() (Descriptor, Executor) {
	d := Descriptor{
		Name:        "echo",
		Description: "echoes its input",
		Parameters:  []Parameter{{Name: "text", Type: "string", Required: true}},
		Timeout:     time.Second,
	}
	e := ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"text": params["text"]}, nil
	})
	return d, e
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := New(nil)
	d, e := echoTool()
	require.NoError(t, r.Register(d, e))
	err := r.Register(d, e)
	require.Error(t, err)
}

func TestRegistry_ExecuteMissingParam(t *testing.T) {
	r := New(nil)
	d, e := echoTool()
	require.NoError(t, r.Register(d, e))

	result := r.Execute(context.Background(), "echo", map[string]any{})
	require.False(t, result.Success)
	require.Equal(t, FailureInvalidParams, result.Kind)
}

func TestRegistry_ExecuteNotFound(t *testing.T) {
	r := New(nil)
	result := r.Execute(context.Background(), "missing", nil)
	require.False(t, result.Success)
	require.Equal(t, FailureNotFound, result.Kind)
}

func TestRegistry_ExecuteSuccess(t *testing.T) {
	r := New(nil)
	d, e := echoTool()
	require.NoError(t, r.Register(d, e))

	result := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.True(t, result.Success)
	require.Equal(t, "hi", result.Value["text"])
}

func TestRegistry_ExecuteTimeout(t *testing.T) {
	r := New(nil)
	d := Descriptor{Name: "slow", Timeout: 10 * time.Millisecond}
	e := ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return map[string]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	require.NoError(t, r.Register(d, e))

	result := r.Execute(context.Background(), "slow", nil)
	require.False(t, result.Success)
	require.Equal(t, FailureTimeout, result.Kind)
}

func TestRegistry_ExecuteFailure(t *testing.T) {
	r := New(nil)
	d := Descriptor{Name: "boom", Timeout: time.Second}
	e := ExecutorFunc(func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return nil, errBoom
	})
	require.NoError(t, r.Register(d, e))

	result := r.Execute(context.Background(), "boom", nil)
	require.False(t, result.Success)
	require.Equal(t, FailureExecutionError, result.Kind)
}

func TestRegistry_TerminalTools(t *testing.T) {
	r := New(nil)
	d, e := echoTool()
	d.Terminal = true
	require.NoError(t, r.Register(d, e))

	require.Equal(t, []string{"echo"}, r.TerminalTools())
}

var errBoom = errFixed("boom")

type errFixed string

func (e errFixed) Error() string { return string(e) }

func TestDescriptor_SchemaFallsBackToParameters(t *testing.T) {
	d, _ := echoTool()
	schema := d.Schema()
	require.Equal(t, "object", schema["type"])
	require.Contains(t, schema["properties"], "text")
	require.Equal(t, []string{"text"}, schema["required"])
}

type schemaParams struct {
	City string `json:"city" jsonschema:"required,description=city name"`
}

func TestDescriptor_SchemaReflectsParamsType(t *testing.T) {
	d := Descriptor{Name: "lookup", ParamsType: schemaParams{}}
	schema := d.Schema()
	require.Equal(t, "object", schema["type"])
	properties, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, properties, "city")
	require.Contains(t, schema["required"], "city")
}
