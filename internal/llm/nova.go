package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/apresai/roleplay/internal/observability"
)

// NovaClient calls Amazon Nova models through the Bedrock Converse API.
type NovaClient struct {
	client      *bedrockruntime.Client
	model       string
	maxAttempts int
}

func NewNovaClient(ctx context.Context, cfg Config) (*NovaClient, error) {
	awsCfg, err := observability.LoadAWSConfig(ctx, os.Getenv("AWS_REGION"))
	if err != nil {
		return nil, err
	}
	return &NovaClient{
		client:      bedrockruntime.NewFromConfig(awsCfg),
		model:       cfg.Model,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

func (n *NovaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = n.model
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	var text string
	err := WithRetry(ctx, n.maxAttempts, func() error {
		resp, err := n.client.Converse(ctx, input)
		if err != nil {
			return err
		}
		text = extractNovaText(resp)
		if text == "" {
			return fmt.Errorf("empty response from Bedrock")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return &Response{Content: text, Model: model}, nil
}

func extractNovaText(resp *bedrockruntime.ConverseOutput) string {
	if resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}
