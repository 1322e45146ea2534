package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatStream struct {
	fragments []string
	recvErr   error
	idx       int
	closed    bool
}

func (s *fakeChatStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.idx >= len(s.fragments) {
		if s.recvErr != nil {
			return openai.ChatCompletionStreamResponse{}, s.recvErr
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	fragment := s.fragments[s.idx]
	s.idx++
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: fragment}},
		},
	}, nil
}

func (s *fakeChatStream) Close() error {
	s.closed = true
	return nil
}

func useFakeChatStream(t *testing.T, stream *fakeChatStream, openErr error) {
	t.Helper()
	orig := openChatStream
	openChatStream = func(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest) (chatStream, error) {
		if openErr != nil {
			return nil, openErr
		}
		return stream, nil
	}
	t.Cleanup(func() { openChatStream = orig })
}

func TestLoadReferenceTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Resources: {}"), 0o644))

	template, err := loadReferenceTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "stack.yaml", template.Name)
	assert.Equal(t, "Resources: {}", template.Content)

	t.Run("missing file", func(t *testing.T) {
		_, err := loadReferenceTemplate(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestBuildRepairMessages(t *testing.T) {
	files := newFileSet()
	files.Set("main.tf", "resource {}")
	files.Set("vars.tf", "variable {}")
	template := referenceTemplate{Name: "stack.yaml", Content: "Resources: {}"}

	messages := buildRepairMessages("Error: invalid block", files, template)
	require.Len(t, messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "expert at fixing Terraform files")
	assert.Equal(t, openai.ChatMessageRoleUser, messages[1].Role)

	user := messages[1].Content
	planIdx := strings.Index(user, "Error: invalid block")
	mainIdx := strings.Index(user, "[START FILE: main.tf]")
	varsIdx := strings.Index(user, "[START FILE: vars.tf]")
	tmplIdx := strings.Index(user, "[START FILE: stack.yaml]")
	instrIdx := strings.Index(user, "Please fix the files based on the tofu output.")

	for name, idx := range map[string]int{"plan output": planIdx, "main.tf": mainIdx, "vars.tf": varsIdx, "template": tmplIdx, "instruction": instrIdx} {
		require.GreaterOrEqual(t, idx, 0, "user message missing %s", name)
	}
	assert.Less(t, planIdx, mainIdx, "plan output must precede the file set")
	assert.Less(t, mainIdx, varsIdx, "files must keep their stored order")
	assert.Less(t, varsIdx, tmplIdx, "template must follow the file set")
	assert.Less(t, tmplIdx, instrIdx, "closing instruction must come last")
	assert.Contains(t, user, "Resources: {}")
}

func TestRequestRepairsAccumulatesFragments(t *testing.T) {
	// Markers split across arbitrary fragment boundaries must behave
	// exactly like a single fragment once concatenated.
	stream := &fakeChatStream{fragments: []string{"[START FI", "LE: a.tf]\nhi\n[END FIL", "E]"}}
	useFakeChatStream(t, stream, nil)

	var echo bytes.Buffer
	fixes, err := requestRepairs(context.Background(), nil, "test-model", nil, &echo)
	require.NoError(t, err)

	require.Equal(t, 1, fixes.Len())
	content, _ := fixes.Get("a.tf")
	assert.Equal(t, "hi", content)
	assert.Contains(t, echo.String(), "[START FILE: a.tf]", "fragments must be echoed live")
	assert.True(t, stream.closed)
}

func TestRequestRepairsEmptyResponse(t *testing.T) {
	stream := &fakeChatStream{fragments: []string{"  ", "\n\t"}}
	useFakeChatStream(t, stream, nil)

	_, err := requestRepairs(context.Background(), nil, "test-model", nil, io.Discard)
	require.ErrorIs(t, err, errEmptyResponse)
}

func TestRequestRepairsNoMarkersYieldsEmptySet(t *testing.T) {
	stream := &fakeChatStream{fragments: []string{"no useful output"}}
	useFakeChatStream(t, stream, nil)

	fixes, err := requestRepairs(context.Background(), nil, "test-model", nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0, fixes.Len())
}

func TestRequestRepairsStreamError(t *testing.T) {
	stream := &fakeChatStream{fragments: []string{"partial"}, recvErr: errors.New("connection reset")}
	useFakeChatStream(t, stream, nil)

	_, err := requestRepairs(context.Background(), nil, "test-model", nil, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read completion stream")
	assert.True(t, stream.closed)
}

func TestRequestRepairsOpenError(t *testing.T) {
	useFakeChatStream(t, nil, errors.New("401 unauthorized"))

	_, err := requestRepairs(context.Background(), nil, "test-model", nil, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open completion stream")
}
