package tagging

import (
	"fmt"
	"os"
	"strings"

	"github.com/dualforge/tagger/internal/models"
	"gopkg.in/yaml.v3"
)

const fluxPrompt = `Generate a short descriptive caption (1-2 lines) that describes the attached image in natural language. It should sound like a creative, human-written prompt or scene description.

Requirements:
- Written in lowercase
- Use vivid but concise natural language
- Avoid listing tags, describe what's happening or what's shown
- Example: "a girl with flowing silver hair stands beneath the moonlight, her sword glowing faintly"

Generate the caption for the provided image.`

const illustriousPrompt = `Generate a comma-separated list of LoRA-style tags for the attached image, suitable for training an image dataset. Follow standard Danbooru/LoRA tag conventions.

Requirements:
- All tags must be in lowercase.
- All tags must be comma-separated.
- Prioritize visible traits and elements in the image.
- Follow this structure for tags:
  - Number of subjects: e.g., 1girl, 1boy, 2girls
  - Hair attributes: e.g., long silver hair, twin tails, ahoge
  - Eye attributes: e.g., blue eyes, heterochromia
  - Facial expression: e.g., smile, serious, blush
  - Outfit/clothing: e.g., school uniform, armor, maid outfit
  - Pose & camera angle: e.g., looking at viewer, kneeling, back view
  - Background & setting: e.g., outdoors, room, night, cityscape
  - Art style: e.g., anime style, digital painting, sketch
- Do not include non-visual concepts, abstract ideas, or hidden lore.

Generate the tags for the provided image.`

// Prompts holds the instruction text sent for each tag style
type Prompts map[models.TagStyle]string

// DefaultPrompts returns the built-in caption and tag instructions
func DefaultPrompts() Prompts {
	return Prompts{
		models.TagStyleFlux:        fluxPrompt,
		models.TagStyleIllustrious: illustriousPrompt,
	}
}

// LoadPrompts reads style overrides from a YAML file shaped like
//
//	flux: |
//	  ...
//	illustrious: |
//	  ...
//
// Styles missing from the file keep their default text.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read styles file: %w", err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse styles file: %w", err)
	}

	for name, text := range overrides {
		style, err := models.ParseTagStyle(name)
		if err != nil {
			return nil, fmt.Errorf("styles file %s: %w", path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		prompts[style] = text
	}

	return prompts, nil
}
