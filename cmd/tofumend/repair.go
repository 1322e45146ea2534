package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const repairSystemPrompt = "I am an expert at fixing Terraform files after a migration from CloudFormation. " +
	"Please provide the output from the Terraform tool and the contents of the files that need to be fixed " +
	"along with their original CloudFormation templates. I am extremely experienced with AWS."

const repairClosingInstruction = "Please fix the files based on the tofu output. Ensure that the Terraform " +
	"configuration aligns with the provided CloudFormation template. Provide only the fixed file contents " +
	"with no additional commentary, maintaining the same filenames and the same [START FILE] and [END FILE] " +
	"markers for each file."

// errEmptyResponse is returned when the model streamed no usable text at
// all. Distinct from a non-blank response without file blocks, which
// decodes to an empty set and consumes a retry round instead.
var errEmptyResponse = errors.New("received empty response from model")

// referenceTemplate is the original CloudFormation document the generated
// configuration is meant to reproduce. Read once at startup, attached to
// every repair request as ground truth.
type referenceTemplate struct {
	Name    string
	Content string
}

func loadReferenceTemplate(path string) (referenceTemplate, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return referenceTemplate{}, fmt.Errorf("original template not found at %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return referenceTemplate{}, fmt.Errorf("read original template: %w", err)
	}
	return referenceTemplate{Name: filepath.Base(path), Content: string(data)}, nil
}

// buildRepairMessages constructs the two-message request: a fixed system
// persona and one user message holding, in order, the plan output, the
// current file set, the reference template, and the closing instruction.
func buildRepairMessages(planOutput string, files *fileSet, template referenceTemplate) []openai.ChatCompletionMessage {
	var prompt strings.Builder
	prompt.WriteString("The following is the output from the tofu tool:\n\n")
	prompt.WriteString(planOutput)
	prompt.WriteString("\n\nHere are the contents of the files:\n\n")
	prompt.WriteString(encodeFileBlocks(files))

	singleton := newFileSet()
	singleton.Set(template.Name, template.Content)
	prompt.WriteString(encodeFileBlocks(singleton))

	prompt.WriteString(repairClosingInstruction)

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: repairSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt.String()},
	}
}

// chatStream is the part of openai.ChatCompletionStream the requester
// consumes. Behind an interface so tests can feed fragments directly.
type chatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

var openChatStream = func(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest) (chatStream, error) {
	return client.CreateChatCompletionStream(ctx, req)
}

// requestRepairs sends the repair request as a streamed completion,
// echoing each fragment as it arrives and concatenating them in arrival
// order. The concatenated text is then decoded into a fileSet. An empty
// result set is legitimate here (model ignored the markers); a blank
// response is not.
var requestRepairs = func(ctx context.Context, client *openai.Client, model string, messages []openai.ChatCompletionMessage, echo io.Writer) (*fileSet, error) {
	stream, err := openChatStream(ctx, client, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		fmt.Fprint(echo, delta)
		text.WriteString(delta)
	}
	fmt.Fprintln(echo)

	if strings.TrimSpace(text.String()) == "" {
		return nil, errEmptyResponse
	}
	return decodeFileBlocks(text.String()), nil
}
