package advisor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keerthanasaravanan18/college/internal/agri"
	"github.com/keerthanasaravanan18/college/internal/gemini"
)

const recsReply = `[{"cropName":"Paddy (Rice)","confidence":91,"expectedYield":"25 Quintals/acre","estimatedProfit":"High",
"sustainabilityScore":80,"sustainabilityReport":"ok","advice":"flood lightly","plantingWindow":"Samba",
"suitabilityReasons":["clay","water"]}]`

func thanjavurRequest() RecommendationRequest {
	return RecommendationRequest{
		Location: "Thanjavur, Tamil Nadu",
		Soil:     agri.SoilData{SoilType: "Black", PH: 7.2, Moisture: 55},
		Weather:  agri.WeatherData{Temp: 32},
		Language: "ta",
		History:  "",
	}
}

func TestRecommendationsReadThrough(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	h.gen.text("recommendations", recsReply)
	ctx := context.Background()

	first := h.advisor.Recommendations(ctx, thanjavurRequest())
	require.Len(t, first, 1)
	require.Equal(t, "Paddy (Rice)", first[0].CropName)
	require.Equal(t, 1, h.gen.count("recommendations"))

	keys := h.storedKeys(t)
	require.Len(t, keys, 1)
	require.Contains(t, keys[0], "recs-v6")

	h.advance(23 * time.Hour)
	second := h.advisor.Recommendations(ctx, thanjavurRequest())
	require.Equal(t, first, second)
	require.Equal(t, 1, h.gen.count("recommendations"))

	req := h.gen.last("recommendations")
	require.Equal(t, "gemini-3-pro-preview", req.Model)
	require.NotNil(t, req.Schema)
	require.True(t, strings.HasSuffix(req.SystemInstruction, "Always respond in Tamil."))
	require.Contains(t, req.Prompt, "Location: Thanjavur, Tamil Nadu")

	h.advance(2 * time.Hour)
	h.advisor.Recommendations(ctx, thanjavurRequest())
	require.Equal(t, 2, h.gen.count("recommendations"))
}

func TestRecommendationsRetriesAndRotates(t *testing.T) {
	h := newHarness(t, []string{"primary", "backup"}, nil)
	attempts := 0
	h.gen.on("recommendations", func(credential string, _ gemini.Request) (gemini.Response, error) {
		attempts++
		if attempts <= 2 {
			return gemini.Response{}, errQuota
		}
		return gemini.Response{Text: recsReply}, nil
	})

	recs := h.advisor.Recommendations(context.Background(), thanjavurRequest())
	require.Len(t, recs, 1)
	require.Equal(t, []string{"primary", "backup", "primary"}, h.gen.creds)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sleeps)
	require.Equal(t, 0, h.pool.Index())
}

func TestRecommendationsFailureYieldsEmptyList(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	h.gen.on("recommendations", func(string, gemini.Request) (gemini.Response, error) {
		return gemini.Response{}, errQuota
	})

	recs := h.advisor.Recommendations(context.Background(), thanjavurRequest())
	require.NotNil(t, recs)
	require.Empty(t, recs)
	require.Equal(t, 4, h.gen.count("recommendations"))
	require.Empty(t, h.storedKeys(t))
}

func TestRecommendationsMalformedReplyIsNotRetried(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	h.gen.text("recommendations", "I cannot help with that.")

	recs := h.advisor.Recommendations(context.Background(), thanjavurRequest())
	require.Empty(t, recs)
	require.Equal(t, 1, h.gen.count("recommendations"))
	require.Empty(t, h.sleeps)
}

func TestRecommendationsEmptyReplyIsNotCached(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	h.gen.text("recommendations", "[]")

	require.Empty(t, h.advisor.Recommendations(context.Background(), thanjavurRequest()))
	require.Empty(t, h.advisor.Recommendations(context.Background(), thanjavurRequest()))
	require.Equal(t, 2, h.gen.count("recommendations"))
	require.Empty(t, h.storedKeys(t))
}

func TestRecommendationsConcurrentCallersShareOneCall(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.gen.on("recommendations", func(string, gemini.Request) (gemini.Response, error) {
		entered <- struct{}{}
		<-release
		return gemini.Response{Text: recsReply}, nil
	})

	var wg sync.WaitGroup
	results := make([][]agri.CropRecommendation, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = h.advisor.Recommendations(context.Background(), thanjavurRequest())
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = h.advisor.Recommendations(context.Background(), thanjavurRequest())
	}()
	// Give the second caller time to join the flight before it settles.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, h.gen.count("recommendations"))
	require.Equal(t, results[0], results[1])
}

func TestRecommendationsSurviveCallerCancellation(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	release := make(chan struct{})
	entered := make(chan struct{})
	h.gen.on("recommendations", func(string, gemini.Request) (gemini.Response, error) {
		close(entered)
		<-release
		return gemini.Response{Text: recsReply}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []agri.CropRecommendation)
	go func() { done <- h.advisor.Recommendations(ctx, thanjavurRequest()) }()
	<-entered
	cancel()
	require.Empty(t, <-done)

	close(release)
	require.Eventually(t, func() bool { return len(h.storedKeys(t)) == 1 }, time.Second, 5*time.Millisecond)
	require.Len(t, h.advisor.Recommendations(context.Background(), thanjavurRequest()), 1)
	require.Equal(t, 1, h.gen.count("recommendations"))
}

func TestLocalRecommendations(t *testing.T) {
	h := newHarness(t, nil, nil)
	recs, err := h.advisor.LocalRecommendations(thanjavurRequest())
	require.NoError(t, err)
	require.Equal(t, "Cotton (Bt Variety)", recs[0].CropName)
	require.Zero(t, h.gen.count("recommendations"))
}
