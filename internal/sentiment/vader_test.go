package sentiment

import (
	"strings"
	"testing"

	"github.com/jonreiter/govader"
	"github.com/spacesedan/sentiharvest/config"
	"github.com/spacesedan/sentiharvest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedScorer struct {
	out  govader.Sentiment
	seen []string
}

func (f *fixedScorer) PolarityScores(text string) govader.Sentiment {
	f.seen = append(f.seen, text)
	return f.out
}

func newTestClassifier() *Classifier {
	return NewClassifier(&config.Config{VeryPositiveThreshold: 0.6, VeryNegativeThreshold: -0.6})
}

func TestScore_EmptyInputReturnsSentinel(t *testing.T) {
	c := newTestClassifier()
	for _, text := range []string{"", "   ", "\n\t  \r\n"} {
		assert.Equal(t, models.NeutralSentiment(), c.Score(text), "input %q", text)
	}
	assert.Equal(t, models.SentimentResult{
		Positive: 0, Neutral: 1, Negative: 0, Compound: 0,
		Label: "Neutral", Bucket: "Neutral", TextLength: 0,
	}, models.NeutralSentiment())
}

func TestScore_PositiveScenario(t *testing.T) {
	c := newTestClassifier()
	result := c.Score("I absolutely love this city!")

	assert.Greater(t, result.Compound, 0.05)
	assert.Equal(t, models.LABEL_POSITIVE, result.Label)
	if result.Compound >= 0.6 {
		assert.Equal(t, models.BUCKET_VERY_POSITIVE, result.Bucket)
	} else {
		assert.Equal(t, models.BUCKET_POSITIVE, result.Bucket)
	}
	assert.Equal(t, len("I absolutely love this city!"), result.TextLength)
}

func TestScore_ComponentContract(t *testing.T) {
	c := newTestClassifier()
	inputs := []string{
		"I absolutely love this city!",
		"The traffic here is horrible and the air is awful.",
		"The train leaves at 9.",
		"Worst. Commute. Ever. :(",
		"**Great** [park](https://example.com/park) but www.spam.example is terrible",
		"ok",
		"😀 café naïve résumé",
	}
	for _, text := range inputs {
		r := c.Score(text)
		assert.GreaterOrEqual(t, r.Positive, 0.0, text)
		assert.GreaterOrEqual(t, r.Neutral, 0.0, text)
		assert.GreaterOrEqual(t, r.Negative, 0.0, text)
		assert.InDelta(t, 1.0, r.Positive+r.Neutral+r.Negative, 0.01, text)
		assert.GreaterOrEqual(t, r.Compound, -1.0, text)
		assert.LessOrEqual(t, r.Compound, 1.0, text)
	}
}

func TestScore_Deterministic(t *testing.T) {
	c := newTestClassifier()
	text := "The food was great but the service was slow."
	assert.Equal(t, c.Score(text), c.Score(text))
}

func TestScore_NormalizesBeforeScoring(t *testing.T) {
	scorer := &fixedScorer{out: govader.Sentiment{Positive: 0.5, Neutral: 0.5, Compound: 0.3}}
	c := NewClassifierWithScorer(scorer, 0.6, -0.6)

	c.Score("  check   https://example.com/x  and www.example.org   now ")
	require.Len(t, scorer.seen, 1)
	assert.Equal(t, "check and now", scorer.seen[0])
}

func TestScore_OnlyURLKeepsRawLength(t *testing.T) {
	scorer := &fixedScorer{}
	c := NewClassifierWithScorer(scorer, 0.6, -0.6)

	text := "https://example.com/only"
	r := c.Score(text)
	assert.Empty(t, scorer.seen)
	assert.Equal(t, models.LABEL_NEUTRAL, r.Label)
	assert.Equal(t, 1.0, r.Neutral)
	assert.Equal(t, len(text), r.TextLength)
}

func TestScore_NormalizesAndClampsScorerOutput(t *testing.T) {
	scorer := &fixedScorer{out: govader.Sentiment{Positive: 0.2, Neutral: 0.2, Negative: 0, Compound: 1.7}}
	c := NewClassifierWithScorer(scorer, 0.6, -0.6)

	r := c.Score("some text")
	assert.Equal(t, 0.5, r.Positive)
	assert.Equal(t, 0.5, r.Neutral)
	assert.Equal(t, 1.0, r.Compound)
	assert.Equal(t, models.BUCKET_VERY_POSITIVE, r.Bucket)

	scorer.out = govader.Sentiment{}
	r = c.Score("some text")
	assert.Equal(t, 1.0, r.Neutral)
	assert.Equal(t, 0.0, r.Positive+r.Negative)
}

func TestScore_TextLengthCountsRunes(t *testing.T) {
	c := NewClassifierWithScorer(&fixedScorer{out: govader.Sentiment{Neutral: 1}}, 0.6, -0.6)
	assert.Equal(t, 5, c.Score("héllo").TextLength)
}

func TestLabelAndBucketConsistency(t *testing.T) {
	c := NewClassifierWithScorer(&fixedScorer{}, 0.6, -0.6)
	for i := -1000; i <= 1000; i++ {
		compound := float64(i) / 1000
		label := Label(compound)
		switch c.Bucket(compound) {
		case models.BUCKET_VERY_POSITIVE, models.BUCKET_POSITIVE:
			assert.Equal(t, models.LABEL_POSITIVE, label, "compound %v", compound)
		case models.BUCKET_VERY_NEGATIVE, models.BUCKET_NEGATIVE:
			assert.Equal(t, models.LABEL_NEGATIVE, label, "compound %v", compound)
		default:
			assert.Equal(t, models.LABEL_NEUTRAL, label, "compound %v", compound)
		}
	}
}

func TestBucketBoundaries(t *testing.T) {
	c := NewClassifierWithScorer(&fixedScorer{}, 0.6, -0.6)
	tests := []struct {
		compound float64
		bucket   string
	}{
		{1, models.BUCKET_VERY_POSITIVE},
		{0.6, models.BUCKET_VERY_POSITIVE},
		{0.59, models.BUCKET_POSITIVE},
		{0.05, models.BUCKET_POSITIVE},
		{0.049, models.BUCKET_NEUTRAL},
		{0, models.BUCKET_NEUTRAL},
		{-0.049, models.BUCKET_NEUTRAL},
		{-0.05, models.BUCKET_NEGATIVE},
		{-0.59, models.BUCKET_NEGATIVE},
		{-0.6, models.BUCKET_VERY_NEGATIVE},
		{-1, models.BUCKET_VERY_NEGATIVE},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.bucket, c.Bucket(tt.compound), "compound %v", tt.compound)
	}
}

func TestScoreItems_CopiesAndPreservesOrder(t *testing.T) {
	scorer := &fixedScorer{out: govader.Sentiment{Positive: 1, Compound: 0.9}}
	c := NewClassifierWithScorer(scorer, 0.6, -0.6)

	items := []models.Item{
		{ID: "a", Title: "first", FullText: "first post"},
		{ID: "b", Title: "second", FullText: ""},
		{ID: "c", Title: "third", FullText: "third post"},
	}
	scored := c.ScoreItems(items)

	require.Len(t, scored, 3)
	assert.Equal(t, []string{"a", "b", "c"}, models.ItemIDs(scored))
	assert.Equal(t, "first", scored[0].Title)
	assert.Equal(t, models.BUCKET_VERY_POSITIVE, scored[0].Bucket)
	assert.Equal(t, models.NeutralSentiment(), scored[1].SentimentResult)
	assert.Empty(t, items[0].Label)
	assert.Equal(t, []string{"first post", "third post"}, scorer.seen)
}

func TestScoreReplies_UsesBody(t *testing.T) {
	scorer := &fixedScorer{out: govader.Sentiment{Negative: 1, Compound: -0.3}}
	c := NewClassifierWithScorer(scorer, 0.6, -0.6)

	replies := []models.Reply{{ID: "r1", Body: "this is bad"}}
	scored := c.ScoreReplies(replies)

	assert.Equal(t, models.LABEL_NEGATIVE, scored[0].Label)
	assert.Equal(t, models.BUCKET_NEGATIVE, scored[0].Bucket)
	assert.Equal(t, []string{"this is bad"}, scorer.seen)
	assert.Empty(t, replies[0].Label)
}

func TestConvertMarkdownToText(t *testing.T) {
	got := strings.Join(strings.Fields(ConvertMarkdownToText("**Loved** the [new park](https://example.com) & it's *great*")), " ")
	assert.Equal(t, "Loved the new park & it's great", got)
}
