// Package command classifies raw user input into a plain chat turn or a
// media-generation directive.
package command

import (
	"strings"

	"mediachat/internal/models"
)

type Kind int

const (
	// Chat means no directive matched; the original text goes to the chat
	// path unchanged.
	Chat Kind = iota
	Generate
)

// Command is the classification result. Prompt is only set for Generate.
type Command struct {
	Kind   Kind
	Media  models.MediaKind
	Prompt string
}

const (
	imagePrefix = "/image "
	videoPrefix = "/video "
)

// Classify inspects a message for an anchored, case-insensitive /image or
// /video directive. A directive with no content after it is not a command.
func Classify(text string) Command {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, imagePrefix):
		if prompt := strings.TrimSpace(trimmed[len(imagePrefix):]); prompt != "" {
			return Command{Kind: Generate, Media: models.MediaImage, Prompt: prompt}
		}
	case strings.HasPrefix(lower, videoPrefix):
		if prompt := strings.TrimSpace(trimmed[len(videoPrefix):]); prompt != "" {
			return Command{Kind: Generate, Media: models.MediaVideo, Prompt: prompt}
		}
	}
	return Command{Kind: Chat}
}
