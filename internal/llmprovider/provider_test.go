package llmprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply    Message
	err      error
	lastOpts ChatOptions
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string, opts ...ChatOption) (Message, error) {
	f.lastOpts = applyChatOptions(opts)
	return f.reply, f.err
}

func TestExtract_ParsesPlainJSON(t *testing.T) {
	var out []map[string]string
	p := &fakeProvider{reply: Message{Content: `[{"who":"Alice"}]`}}

	err := Extract(context.Background(), p, "system", "user", "model-x", &out)

	require.NoError(t, err)
	require.Equal(t, "Alice", out[0]["who"])
}

func TestExtract_StripsCodeFence(t *testing.T) {
	var out []map[string]string
	p := &fakeProvider{reply: Message{Content: "```json\n[{\"who\":\"Bob\"}]\n```"}}

	err := Extract(context.Background(), p, "system", "user", "model-x", &out)

	require.NoError(t, err)
	require.Equal(t, "Bob", out[0]["who"])
}

func TestExtract_UsesDeterministicTemperature(t *testing.T) {
	var out []map[string]string
	p := &fakeProvider{reply: Message{Content: `[]`}}

	err := Extract(context.Background(), p, "system", "user", "model-x", &out)

	require.NoError(t, err)
	require.NotNil(t, p.lastOpts.Temperature)
	require.Equal(t, 0.0, *p.lastOpts.Temperature)
}

func TestExtract_ToleratesLeadingAndTrailingProse(t *testing.T) {
	var out []map[string]string
	p := &fakeProvider{reply: Message{Content: "Here are the extracted facts:\n[{\"who\":\"Carol\"}]\nLet me know if you need more."}}

	err := Extract(context.Background(), p, "system", "user", "model-x", &out)

	require.NoError(t, err)
	require.Equal(t, "Carol", out[0]["who"])
}

func TestExtract_ToleratesProseAroundObject(t *testing.T) {
	var out struct {
		Violated bool `json:"violated"`
	}
	p := &fakeProvider{reply: Message{Content: "Sure thing, here's the verdict: {\"violated\": true} hope that helps!"}}

	err := Extract(context.Background(), p, "system", "user", "model-x", &out)

	require.NoError(t, err)
	require.True(t, out.Violated)
}

func TestExtract_RejectsSchemaViolation(t *testing.T) {
	var out []map[string]string
	p := &fakeProvider{reply: Message{Content: `{"not": "an array"}`}}

	err := Extract(context.Background(), p, "system", "user", "model-x", &out)

	require.Error(t, err)
}

func TestNew_UnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "bogus")

	_, err := New()

	require.Error(t, err)
}
