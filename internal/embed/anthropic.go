package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

// anthropicEmbedDimensions is the length of the semantic feature vector
// requested from the model. Anthropic does not expose a dedicated
// embeddings endpoint, so AnthropicEmbedder asks the Messages API for a
// forced tool call returning a fixed-length array of semantic feature
// scores, then treats that array as the vector. This trades embedding
// quality for "one fewer external dependency" when an operator has already
// standardized on an Anthropic API key; HashEmbedder remains the default
// for anyone who wants a real ANN-grade embedding space without a network
// round trip.
const anthropicEmbedDimensions = 64

const featureToolName = "record_semantic_features"

// AnthropicEmbedder is a remote Embedder backed by the Messages API,
// wrapped in exponential backoff the same way the teacher's DoltStore
// retries transient server-mode connection errors.
type AnthropicEmbedder struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicEmbedder builds an embedder against the given model name
// (e.g. "claude-3-5-haiku-20241022"). apiKey may be empty, in which case
// ANTHROPIC_API_KEY from the environment is used, matching the teacher's
// haikuClient precedence.
func NewAnthropicEmbedder(apiKey, model string) *AnthropicEmbedder {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicEmbedder{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

func (a *AnthropicEmbedder) Version() string {
	return "anthropic:" + string(a.model)
}

func (a *AnthropicEmbedder) Dimensions() int { return anthropicEmbedDimensions }

// Embed requests one feature vector per text, sequentially. The Retriever
// and Indexer batch calls per-memory rather than per-query, so sequential
// calls here keep the retry/backoff logic simple without sacrificing
// meaningful throughput.
func (a *AnthropicEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		v, err := a.embedOne(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed: anthropic embedder: %w", err)
		}
		out[i] = v
	}
	return out, nil
}

func (a *AnthropicEmbedder) embedOne(ctx context.Context, text string) (Vector, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(featurePrompt(text))),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        featureToolName,
					Description: anthropic.String("Record a fixed-length semantic feature vector for the given text."),
					InputSchema: featureToolSchema(),
				},
			},
		},
	}

	bo := backoff.NewExponentialBackOff()

	var vec Vector
	err := backoff.Retry(func() error {
		message, err := a.client.Messages.New(ctx, params)
		if err != nil {
			if isRetryableAnthropicErr(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		v, parseErr := extractFeatures(message)
		if parseErr != nil {
			return backoff.Permanent(parseErr)
		}
		vec = v
		return nil
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		return nil, err
	}
	return vec, nil
}

const opposingToolName = "record_opposing_judgment"

// OpposingJudgment is the model's verdict on whether two memory bodies give
// opposing directives on the same topic.
type OpposingJudgment struct {
	Opposing   bool
	Confidence float64
	Rationale  string
}

// ClassifyOpposing asks the Messages API whether two memory bodies give
// conflicting directives, for the optional rule_extraction conflict
// analyzer (spec.md §9's "absence must not break the core detection loop"
// requirement is enforced by callers treating a nil *AnthropicEmbedder as
// "skip this analyzer", not by this method itself).
func (a *AnthropicEmbedder) ClassifyOpposing(ctx context.Context, bodyA, bodyB string) (OpposingJudgment, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(opposingPrompt(bodyA, bodyB))),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        opposingToolName,
					Description: anthropic.String("Record whether two passages give opposing directives on the same topic."),
					InputSchema: opposingToolSchema(),
				},
			},
		},
	}

	bo := backoff.NewExponentialBackOff()

	var out OpposingJudgment
	err := backoff.Retry(func() error {
		message, err := a.client.Messages.New(ctx, params)
		if err != nil {
			if isRetryableAnthropicErr(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		j, parseErr := extractOpposingJudgment(message)
		if parseErr != nil {
			return backoff.Permanent(parseErr)
		}
		out = j
		return nil
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		return OpposingJudgment{}, fmt.Errorf("embed: anthropic classify opposing: %w", err)
	}
	return out, nil
}

func opposingPrompt(bodyA, bodyB string) string {
	return "Two memory entries below may give opposing directives on the same topic. " +
		"Judge whether they actually conflict.\n\n--- Entry A ---\n" + bodyA +
		"\n\n--- Entry B ---\n" + bodyB + "\n---"
}

func opposingToolSchema() anthropic.ToolInputSchemaParam {
	return anthropic.ToolInputSchemaParam{
		Properties: map[string]any{
			"opposing": map[string]any{
				"type":        "boolean",
				"description": "True if the two entries give conflicting directives.",
			},
			"confidence": map[string]any{
				"type":        "number",
				"description": "Confidence in [0, 1] that the judgment is correct.",
			},
			"rationale": map[string]any{
				"type":        "string",
				"description": "One sentence explaining the judgment.",
			},
		},
	}
}

type opposingInput struct {
	Opposing   bool    `json:"opposing"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func extractOpposingJudgment(message *anthropic.Message) (OpposingJudgment, error) {
	for _, block := range message.Content {
		if block.Type != "tool_use" {
			continue
		}
		var in opposingInput
		if err := json.Unmarshal(block.Input, &in); err != nil {
			return OpposingJudgment{}, fmt.Errorf("decode tool input: %w", err)
		}
		return OpposingJudgment{Opposing: in.Opposing, Confidence: in.Confidence, Rationale: in.Rationale}, nil
	}
	return OpposingJudgment{}, fmt.Errorf("no tool_use block in response")
}

func isRetryableAnthropicErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "overloaded") || strings.Contains(msg, "timeout")
}

func featurePrompt(text string) string {
	return "Analyze the semantic content of the following text and record its feature vector.\n\n---\n" + text + "\n---"
}

func featureToolSchema() anthropic.ToolInputSchemaParam {
	return anthropic.ToolInputSchemaParam{
		Properties: map[string]any{
			"features": map[string]any{
				"type":        "array",
				"description": fmt.Sprintf("Exactly %d floats in [-1, 1] summarizing the text's semantics.", anthropicEmbedDimensions),
				"items":       map[string]any{"type": "number"},
				"minItems":    anthropicEmbedDimensions,
				"maxItems":    anthropicEmbedDimensions,
			},
		},
	}
}

type featureInput struct {
	Features []float32 `json:"features"`
}

func extractFeatures(message *anthropic.Message) (Vector, error) {
	for _, block := range message.Content {
		if block.Type != "tool_use" {
			continue
		}
		var in featureInput
		if err := json.Unmarshal(block.Input, &in); err != nil {
			return nil, fmt.Errorf("decode tool input: %w", err)
		}
		v := make(Vector, anthropicEmbedDimensions)
		n := len(in.Features)
		if n > anthropicEmbedDimensions {
			n = anthropicEmbedDimensions
		}
		copy(v, in.Features[:n])
		normalize(v)
		return v, nil
	}
	return nil, fmt.Errorf("no tool_use block in response")
}
