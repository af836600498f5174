package domain

import "strings"

// stylePresets maps a preset key to the suffix concatenated onto the
// prompt before generation. Unknown keys leave the prompt untouched.
var stylePresets = map[string]string{
	"watercolor":   ", soft watercolor painting, gentle washes of color",
	"minimalist":   ", minimalist line art, clean composition, generous negative space",
	"vintage":      ", vintage travel poster style, muted palette, subtle grain",
	"cyberpunk":    ", cyberpunk cityscape aesthetic, neon glow, high contrast",
	"sketch":       ", detailed pencil sketch, expressive cross-hatching",
	"photographic": ", photorealistic, natural lighting, shallow depth of field",
	"pixel":        ", retro pixel art, limited 16-color palette",
}

// ApplyStylePreset resolves the prompt sent to the image provider.
func ApplyStylePreset(prompt, preset string) string {
	suffix, ok := stylePresets[strings.TrimSpace(preset)]
	if !ok {
		return prompt
	}
	return prompt + suffix
}

// KnownStylePreset reports whether the key maps to a preset suffix.
func KnownStylePreset(preset string) bool {
	_, ok := stylePresets[strings.TrimSpace(preset)]
	return ok
}
