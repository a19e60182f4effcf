package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

func at(day, hour int) *time.Time {
	t := time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func urls(articles []accident.RawArticle) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.URL
	}
	return out
}

func TestMergeDedupesAndSorts(t *testing.T) {
	newage := []accident.RawArticle{
		{URL: "https://newagebd.net/1", PublishedAt: at(2, 9)},
		{URL: "https://newagebd.net/2", PublishedAt: nil},
	}
	dailystar := []accident.RawArticle{
		{URL: "https://thedailystar.net/1", PublishedAt: at(1, 8)},
		{URL: "https://www.newagebd.net/1", PublishedAt: at(1, 1)},
	}
	alerts := []accident.RawArticle{
		{URL: "https://example.com/stored", PublishedAt: at(1, 0)},
		{URL: "https://example.com/3", PublishedAt: at(1, 12)},
	}
	known := accident.NewURLSet("https://example.com/stored")

	got := Merge(known, newage, dailystar, alerts)
	assert.Equal(t, []string{
		"https://thedailystar.net/1",
		"https://example.com/3",
		"https://newagebd.net/1",
		"https://newagebd.net/2",
	}, urls(got))
}

func TestFilterRelevantExcludesArticlesWithoutKeywords(t *testing.T) {
	articles := []accident.RawArticle{
		{URL: "1", Text: "A truck CRASHED into a bridge railing."},
		{URL: "2", Text: "The central bank left interest rates unchanged.", Title: "Road accident"},
		{URL: "3", Text: "Launch capsized in the Meghna after a storm; rescuers say the vessel would capsize often."},
	}
	got := FilterRelevant(articles, DefaultKeywords)
	assert.Equal(t, []string{"1", "3"}, urls(got))
}

func TestRemoveNearDuplicatesDropsLaterSimilarArticle(t *testing.T) {
	articles := []accident.RawArticle{
		{URL: "first", Text: storyA, PublishedAt: at(1, 8)},
		{URL: "second", Text: storyNear, PublishedAt: at(1, 10)},
	}
	got, err := RemoveNearDuplicates(articles, DefaultThreshold, DefaultMaxBucket)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, urls(got))
}

func TestRemoveNearDuplicatesKeepsModeratelySimilarArticles(t *testing.T) {
	articles := []accident.RawArticle{
		{URL: "first", Text: storyA, PublishedAt: at(1, 8)},
		{URL: "second", Text: storyHalf, PublishedAt: at(1, 10)},
	}
	got, err := RemoveNearDuplicates(articles, DefaultThreshold, DefaultMaxBucket)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, urls(got))
}

func TestRemoveNearDuplicatesOnlyComparesSameDate(t *testing.T) {
	articles := []accident.RawArticle{
		{URL: "day1", Text: storyA, PublishedAt: at(1, 8)},
		{URL: "day2", Text: storyA, PublishedAt: at(2, 8)},
		{URL: "undated", Text: storyA},
	}
	got, err := RemoveNearDuplicates(articles, DefaultThreshold, DefaultMaxBucket)
	require.NoError(t, err)
	assert.Equal(t, []string{"day1", "day2", "undated"}, urls(got))
}

func TestRemoveNearDuplicatesResourceLimit(t *testing.T) {
	articles := []accident.RawArticle{
		{URL: "a", Text: storyA, PublishedAt: at(1, 1)},
		{URL: "b", Text: storyA, PublishedAt: at(1, 2)},
		{URL: "c", Text: storyA, PublishedAt: at(1, 3)},
	}
	_, err := RemoveNearDuplicates(articles, DefaultThreshold, 2)
	assert.ErrorIs(t, err, ErrResourceLimit)
}

func TestProcessReportsStats(t *testing.T) {
	m := New(Options{})
	batchA := []accident.RawArticle{
		{URL: "a", Text: storyA, PublishedAt: at(1, 8)},
		{URL: "b", Text: "Stock markets rallied.", PublishedAt: at(1, 9)},
	}
	batchB := []accident.RawArticle{
		{URL: "a", Text: storyA, PublishedAt: at(1, 8)},
		{URL: "c", Text: storyNear, PublishedAt: at(1, 11)},
		{URL: "d", Text: storyHalf, PublishedAt: at(1, 12)},
	}

	got, st, err := m.Process(accident.NewURLSet(), batchA, batchB)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, urls(got))
	assert.Equal(t, Stats{Input: 5, URLDuplicates: 1, Irrelevant: 1, NearDuplicates: 1, Output: 2}, st)
}
