package advisor

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/prompts"
)

var errNoImage = errors.New("advisor: reply carried no image")

// CropImage returns a data URL picturing crop, or false when none could be made.
// force regenerates even when a cached image exists.
func (a *Advisor) CropImage(ctx context.Context, crop string, force bool) (string, bool) {
	name := cleanCropName(crop)
	if name == "" {
		return "", false
	}
	url, err := run(ctx, a, flow[string]{
		key:      ImageKey(crop),
		ttl:      a.ttl.Image,
		skipRead: force,
		policy:   a.policy,
		call: func(ctx context.Context, credential string) (string, error) {
			prompt, err := a.prompts.Render(prompts.Image, map[string]string{"Crop": name})
			if err != nil {
				return "", err
			}
			resp, err := a.generator.Generate(ctx, credential, gemini.Request{
				Domain:     "image",
				Model:      a.models.Image,
				Prompt:     prompt,
				Modalities: []string{"IMAGE"},
			})
			if err != nil {
				return "", err
			}
			if len(resp.Data) == 0 {
				return "", errNoImage
			}
			mime := resp.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(resp.Data), nil
		},
	})
	if err != nil {
		a.logger.Warn("crop image generation failed",
			slog.String("crop", name),
			slog.Any("error", err),
		)
		return "", false
	}
	return url, url != ""
}
