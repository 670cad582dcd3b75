package advisor

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"

	"github.com/keerthanasaravanan18/college/internal/gemini"
	"github.com/keerthanasaravanan18/college/internal/prompts"
	"github.com/keerthanasaravanan18/college/internal/retry"
)

// Speech sources.
const (
	SpeechNeural = "neural"
	SpeechLocal  = "local"
)

const (
	speechSampleRate = 24000
	localSpeechRate  = 0.95
)

var (
	errNoAudio        = errors.New("advisor: reply carried no audio")
	speechPunctuation = strings.NewReplacer("*", "", "#", "", "_", "", "[", "", "]", "", `\`, "")
)

// SpeechRequest asks for text to be read aloud.
type SpeechRequest struct {
	Text     string `json:"text"`
	Language string `json:"lang" validate:"omitempty,oneof=en ta"`
}

// Speech is either neural audio (base64 16-bit PCM, mono) or a directive for
// the client's own synthesizer.
type Speech struct {
	Source     string  `json:"source"`
	Audio      string  `json:"audio,omitempty"`
	SampleRate int     `json:"sampleRate,omitempty"`
	Text       string  `json:"text,omitempty"`
	Locale     string  `json:"locale,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
}

// Speak narrates req.Text. It is never cached or deduplicated; when the neural
// voice fails after its retries the local directive is returned instead.
func (a *Advisor) Speak(ctx context.Context, req SpeechRequest) Speech {
	if req.Text == "" {
		return Speech{}
	}
	audio, err := retry.Do(ctx, a.retrier, a.speech, func(ctx context.Context, credential string) ([]byte, error) {
		prompt, err := a.prompts.Render(prompts.Speech, map[string]string{"Lang": req.Language, "Text": req.Text})
		if err != nil {
			return nil, err
		}
		resp, err := a.generator.Generate(ctx, credential, gemini.Request{
			Domain:     "speech",
			Model:      a.models.Speech,
			Prompt:     prompt,
			Modalities: []string{"AUDIO"},
			Voice:      a.voice,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, errNoAudio
		}
		return resp.Data, nil
	})
	if err == nil {
		return Speech{
			Source:     SpeechNeural,
			Audio:      base64.StdEncoding.EncodeToString(audio),
			SampleRate: speechSampleRate,
		}
	}
	a.logger.Warn("neural speech failed, using local synthesis", slog.Any("error", err))
	return LocalSpeech(req)
}

// LocalSpeech builds the client-side synthesis directive for req.
func LocalSpeech(req SpeechRequest) Speech {
	locale := "en-IN"
	if strings.EqualFold(req.Language, "ta") {
		locale = "ta-IN"
	}
	return Speech{
		Source: SpeechLocal,
		Text:   strings.TrimSpace(speechPunctuation.Replace(req.Text)),
		Locale: locale,
		Rate:   localSpeechRate,
	}
}
