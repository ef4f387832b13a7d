// Package gemini adapts the Google GenAI APIs to the dispatch.Backend
// contract. Every method is a pass-through call; the polling loop and all
// retry policy live in the dispatcher.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"mediachat/internal/config"
	"mediachat/internal/dispatch"
	"mediachat/internal/models"
)

type Backend struct {
	client    *genai.Client
	chatModel model.ToolCallingChatModel
	cfg       config.GeminiConfig
}

func NewBackend(ctx context.Context, cfg config.GeminiConfig) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	chatModel, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.ChatModel,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return &Backend{client: client, chatModel: chatModel, cfg: cfg}, nil
}

// GenerateText runs one chat completion. Attachments become inline
// multimodal parts alongside the prompt.
func (b *Backend) GenerateText(ctx context.Context, prompt string, attachments []models.Attachment) (string, error) {
	msg := &schema.Message{Role: schema.User, Content: prompt}
	if len(attachments) > 0 {
		parts := []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: prompt}}
		for _, att := range attachments {
			parts = append(parts, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      "data:" + att.MimeType + ";base64," + att.Data,
					MIMEType: att.MimeType,
				},
			})
		}
		msg = &schema.Message{Role: schema.User, MultiContent: parts}
	}

	resp, err := b.chatModel.Generate(ctx, []*schema.Message{msg})
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	return resp.Content, nil
}

// GenerateImage runs one Imagen request and returns the inline image bytes.
func (b *Backend) GenerateImage(ctx context.Context, prompt string) (*dispatch.RawMedia, error) {
	resp, err := b.client.Models.GenerateImages(ctx, b.cfg.ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, errors.New("no image returned")
	}
	image := resp.GeneratedImages[0].Image
	if len(image.ImageBytes) == 0 {
		return nil, errors.New("image response carried no bytes")
	}
	return &dispatch.RawMedia{Data: image.ImageBytes, MIMEType: image.MIMEType}, nil
}

// StartVideo submits a Veo request and returns the long-running operation
// handle. The optional seed attachment becomes the starting image.
func (b *Backend) StartVideo(ctx context.Context, prompt string, seed *models.Attachment) (*dispatch.VideoOperation, error) {
	var image *genai.Image
	if seed != nil {
		data, err := base64.StdEncoding.DecodeString(seed.Data)
		if err != nil {
			return nil, fmt.Errorf("decode seed image: %w", err)
		}
		image = &genai.Image{ImageBytes: data, MIMEType: seed.MimeType}
	}

	op, err := b.client.Models.GenerateVideos(ctx, b.cfg.VideoModel, prompt, image, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("start video generation: %w", err)
	}
	return b.wrapOperation(op), nil
}

// PollVideo performs one status check against the operation handle.
func (b *Backend) PollVideo(ctx context.Context, op *dispatch.VideoOperation) (*dispatch.VideoOperation, error) {
	raw, ok := op.Handle.(*genai.GenerateVideosOperation)
	if !ok {
		return nil, errors.New("operation handle is not a veo operation")
	}
	updated, err := b.client.Operations.GetVideosOperation(ctx, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("poll video operation: %w", err)
	}
	return b.wrapOperation(updated), nil
}

// FetchVideo downloads a by-reference result into destPath.
func (b *Backend) FetchVideo(ctx context.Context, op *dispatch.VideoOperation, destPath string) error {
	raw, ok := op.Handle.(*genai.GenerateVideosOperation)
	if !ok {
		return errors.New("operation handle is not a veo operation")
	}
	video := firstVideo(raw)
	if video == nil {
		return errors.New("operation carries no video to download")
	}
	data, err := b.client.Files.Download(ctx, video, nil)
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	if len(data) == 0 {
		data = video.VideoBytes
	}
	if len(data) == 0 {
		return errors.New("download returned no bytes")
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (b *Backend) wrapOperation(op *genai.GenerateVideosOperation) *dispatch.VideoOperation {
	out := &dispatch.VideoOperation{Done: op.Done, Handle: op}
	if !op.Done {
		return out
	}
	if op.Error != nil {
		out.ErrDetail = fmt.Sprintf("%v", op.Error)
		return out
	}
	if video := firstVideo(op); video != nil {
		out.Video = &dispatch.RawMedia{Data: video.VideoBytes, MIMEType: video.MIMEType}
		if len(video.VideoBytes) == 0 {
			out.Video.DownloadRef = video.URI
		}
	}
	return out
}

func firstVideo(op *genai.GenerateVideosOperation) *genai.Video {
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return nil
	}
	return op.Response.GeneratedVideos[0].Video
}
