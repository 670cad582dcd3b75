package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keerthanasaravanan18/college/internal/gemini"
)

const marketReply = "Here you go:\n```json\n" + `{"analysis":"Paddy steady.","lastUpdated":"9:30AM","prices":[{"commodity":"Paddy","mandi":"Thanjavur","minPrice":"₹2100","maxPrice":"₹2500","modalPrice":"₹2300","trend":"Stable"}]}` + "\n```"

func marketSourcesReply() []gemini.Source {
	return []gemini.Source{
		{Title: "eNAM", URI: "https://enam.gov.in/a"},
		{Title: "", URI: "https://agmarknet.gov.in/b"},
		{Title: "blank", URI: ""},
		{Title: "News", URI: "https://example.org/c"},
		{Title: "Extra", URI: "https://example.org/d"},
	}
}

func TestMarketCachesWithSources(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	h.gen.on("market", func(string, gemini.Request) (gemini.Response, error) {
		return gemini.Response{Text: marketReply, Sources: marketSourcesReply()}, nil
	})
	req := MarketRequest{Location: "Thanjavur", Crops: []string{"Paddy", "Banana"}, Language: "en"}

	insight, err := h.advisor.Market(context.Background(), req)
	require.NoError(t, err)
	require.True(t, insight.Live)
	require.Equal(t, "Paddy steady.", insight.Analysis)
	require.Len(t, insight.Prices, 1)
	require.Len(t, insight.Sources, 3)
	require.Equal(t, "Source", insight.Sources[1].Title)
	require.Equal(t, "https://example.org/c", insight.Sources[2].URI)

	call := h.gen.last("market")
	require.True(t, call.Search)
	require.Nil(t, call.Schema)
	require.Contains(t, call.Prompt, "for 2026-06-01 in Thanjavur, India")

	keys := h.storedKeys(t)
	require.Len(t, keys, 1)
	require.True(t, strings.HasSuffix(keys[0], "live-market-v6-Thanjavur-Paddy-Banana-en-2026-06-01"))

	cached, err := h.advisor.Market(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, insight, cached)
	require.Equal(t, 1, h.gen.count("market"))
}

func TestMarketForceBypassesReadButWrites(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	analyses := []string{"first", "second"}
	h.gen.on("market", func(string, gemini.Request) (gemini.Response, error) {
		next := analyses[0]
		analyses = analyses[1:]
		return gemini.Response{Text: `{"analysis":"` + next + `","prices":[]}`}, nil
	})
	req := MarketRequest{Location: "Salem", Crops: []string{"Maize"}}

	first, err := h.advisor.Market(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "first", first.Analysis)

	req.Force = true
	forced, err := h.advisor.Market(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "second", forced.Analysis)

	req.Force = false
	cached, err := h.advisor.Market(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "second", cached.Analysis)
	require.Equal(t, 2, h.gen.count("market"))
}

func TestMarketKeyRollsOverAtMidnight(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	h.gen.on("market", func(string, gemini.Request) (gemini.Response, error) {
		return gemini.Response{Text: `{"analysis":"ok","prices":[]}`}, nil
	})
	req := MarketRequest{Location: "Salem", Crops: []string{"Maize"}}

	_, err := h.advisor.Market(context.Background(), req)
	require.NoError(t, err)
	h.advance(19 * time.Hour)
	_, err = h.advisor.Market(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, h.gen.count("market"))
	require.Len(t, h.storedKeys(t), 2)
}

func TestMarketPropagatesFailures(t *testing.T) {
	h := newHarness(t, []string{"primary"}, nil)
	boom := errors.New("connection reset")
	h.gen.on("market", func(string, gemini.Request) (gemini.Response, error) {
		return gemini.Response{}, boom
	})

	_, err := h.advisor.Market(context.Background(), MarketRequest{Location: "Salem", Crops: []string{"Maize"}})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, h.gen.count("market"))

	h.gen.text("market", `{"unexpected":true}`)
	_, err = h.advisor.Market(context.Background(), MarketRequest{Location: "Salem", Crops: []string{"Maize"}})
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.Empty(t, h.storedKeys(t))
}
