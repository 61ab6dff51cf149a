package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	auth string
	body map[string]any
}

func newTestServer(t *testing.T, status int, reply string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if captured != nil {
			captured.auth = r.Header.Get("Authorization")
			data, _ := io.ReadAll(r.Body)
			captured.body = map[string]any{}
			_ = json.Unmarshal(data, &captured.body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestParseCustomFormat(t *testing.T) {
	assert.Equal(t, FormatOpenAI, ParseCustomFormat(""))
	assert.Equal(t, FormatOpenAI, ParseCustomFormat("OpenAI"))
	assert.Equal(t, FormatOllama, ParseCustomFormat("ollama"))
	assert.Equal(t, FormatRaw, ParseCustomFormat("raw"))
	assert.Equal(t, FormatRaw, ParseCustomFormat("something-else"))
}

func TestCustomProvider_OpenAIDialect(t *testing.T) {
	var captured capturedRequest
	server := newTestServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"def f(): pass"}}]}`, &captured)

	p := NewCustomProvider(CustomConfig{Endpoint: server.URL, APIKey: "secret", Model: "llama3", Format: "openai"}, server.Client())
	got, err := p.SendMessage(context.Background(), "write f", "ctx")
	require.NoError(t, err)

	assert.Equal(t, "def f(): pass", got)
	assert.Equal(t, "Bearer secret", captured.auth)
	assert.Equal(t, "llama3", captured.body["model"])
	messages := captured.body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "write f\n\nContext:\nctx", messages[1].(map[string]any)["content"])
}

func TestCustomProvider_OllamaDialect(t *testing.T) {
	var captured capturedRequest
	server := newTestServer(t, http.StatusOK, `{"model":"codellama","response":"print(1)","done":true}`, &captured)

	p := NewCustomProvider(CustomConfig{Endpoint: server.URL, Format: "ollama"}, server.Client())
	got, err := p.SendMessage(context.Background(), "print one", "")
	require.NoError(t, err)

	assert.Equal(t, "print(1)", got)
	assert.Empty(t, captured.auth)
	assert.Equal(t, "codellama", captured.body["model"])
	assert.Equal(t, "print one", captured.body["prompt"])
	assert.Equal(t, false, captured.body["stream"])
}

func TestCustomProvider_RawDialectBody(t *testing.T) {
	var captured capturedRequest
	server := newTestServer(t, http.StatusOK, `{"text":"ok"}`, &captured)

	p := NewCustomProvider(CustomConfig{Endpoint: server.URL, Format: "raw"}, server.Client())
	got, err := p.SendMessage(context.Background(), "hello", "some context")
	require.NoError(t, err)

	assert.Equal(t, "ok", got)
	assert.Equal(t, "hello", captured.body["message"])
	assert.Equal(t, "some context", captured.body["context"])
	assert.Equal(t, "hello\n\nContext:\nsome context", captured.body["prompt"])
}

func TestCustomProvider_CandidatePaths(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"response", `{"response":"a"}`, "a"},
		{"message before content", `{"message":"b","content":"c"}`, "b"},
		{"content", `{"content":"c"}`, "c"},
		{"output", `{"output":"d"}`, "d"},
		{"completion", `{"completion":"e"}`, "e"},
		{"choices text", `{"choices":[{"text":"f"}]}`, "f"},
		{"gemini shape", `{"candidates":[{"content":{"parts":[{"text":"g"}]}}]}`, "g"},
		{"non-string skipped", `{"message":{"role":"assistant"},"text":"h"}`, "h"},
		{"no match", `{"unknown":"x"}`, noCustomResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, http.StatusOK, tt.reply, nil)
			p := NewCustomProvider(CustomConfig{Endpoint: server.URL, Format: "raw"}, server.Client())
			got, err := p.SendMessage(context.Background(), "q", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomProvider_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuthorizationDenied},
		{http.StatusNotFound, KindModelUnavailable},
		{http.StatusBadRequest, KindMalformedRequest},
		{http.StatusTooManyRequests, KindRateLimited},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := newTestServer(t, tt.status, `{"error":{"message":"backend says no"}}`, nil)
			p := NewCustomProvider(CustomConfig{Endpoint: server.URL}, server.Client())
			_, err := p.SendMessage(context.Background(), "q", "")
			pe, ok := IsProviderError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Contains(t, pe.Message, "backend says no")
		})
	}
}

func TestCustomProvider_MissingEndpointFailsFast(t *testing.T) {
	p := NewCustomProvider(CustomConfig{}, nil)
	_, err := p.SendMessage(context.Background(), "", "")
	assert.True(t, IsKind(err, KindConfigurationMissing))

	p = NewCustomProvider(CustomConfig{Endpoint: "not a url"}, nil)
	_, err = p.SendMessage(context.Background(), "q", "")
	assert.True(t, IsKind(err, KindConfigurationMissing))
}

func TestCustomProvider_InvalidJSON(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `<html>oops</html>`, nil)
	p := NewCustomProvider(CustomConfig{Endpoint: server.URL}, server.Client())
	_, err := p.SendMessage(context.Background(), "q", "")
	assert.True(t, IsKind(err, KindUnexpectedResponse))
}

func TestCustomProvider_TransportFailure(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{}`, nil)
	url := server.URL
	server.Close()

	p := NewCustomProvider(CustomConfig{Endpoint: url}, nil)
	_, err := p.SendMessage(context.Background(), "q", "")
	assert.True(t, IsKind(err, KindTransport))
}
