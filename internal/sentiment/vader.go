package sentiment

import (
	"bytes"
	"html"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
	"github.com/spacesedan/sentiharvest/config"
	"github.com/spacesedan/sentiharvest/internal/models"
)

var (
	urlPattern = regexp.MustCompile(`http\S+|www\.\S+`)
	tagPattern = regexp.MustCompile(`<[^>]+>`)
)

// Scorer produces lexicon valence scores. *govader.SentimentIntensityAnalyzer satisfies it.
type Scorer interface {
	PolarityScores(text string) govader.Sentiment
}

// Classifier turns free text into a models.SentimentResult. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	scorer       Scorer
	veryPositive float64
	veryNegative float64
}

func NewClassifier(cfg *config.Config) *Classifier {
	return NewClassifierWithScorer(govader.NewSentimentIntensityAnalyzer(),
		cfg.VeryPositiveThreshold, cfg.VeryNegativeThreshold)
}

// NewClassifierWithScorer expects thresholds already checked by config.Validate.
func NewClassifierWithScorer(scorer Scorer, veryPositive, veryNegative float64) *Classifier {
	return &Classifier{
		scorer:       scorer,
		veryPositive: veryPositive,
		veryNegative: veryNegative,
	}
}

// Score classifies a single text. Empty or whitespace-only text yields the
// neutral sentinel.
func (c *Classifier) Score(text string) models.SentimentResult {
	if strings.TrimSpace(text) == "" {
		return models.NeutralSentiment()
	}

	length := utf8.RuneCountInString(text)

	plain := Normalize(text)
	if plain == "" {
		result := models.NeutralSentiment()
		result.TextLength = length
		return result
	}

	raw := c.scorer.PolarityScores(plain)
	pos, neu, neg := normalizeComponents(raw.Positive, raw.Neutral, raw.Negative)
	compound := clamp(raw.Compound, -1, 1)

	return models.SentimentResult{
		Positive:   round3(pos),
		Neutral:    round3(neu),
		Negative:   round3(neg),
		Compound:   round3(compound),
		Label:      Label(compound),
		Bucket:     c.Bucket(compound),
		TextLength: length,
	}
}

// ScoreItems scores each item's FullText. The input slice is left untouched.
func (c *Classifier) ScoreItems(items []models.Item) []models.Item {
	scored := make([]models.Item, len(items))
	for i, item := range items {
		item.SentimentResult = c.Score(item.FullText)
		scored[i] = item
	}
	return scored
}

// ScoreReplies scores each reply's Body. The input slice is left untouched.
func (c *Classifier) ScoreReplies(replies []models.Reply) []models.Reply {
	scored := make([]models.Reply, len(replies))
	for i, reply := range replies {
		reply.SentimentResult = c.Score(reply.Body)
		scored[i] = reply
	}
	return scored
}

func Label(compound float64) string {
	switch {
	case compound >= config.LABEL_POSITIVE_CUTOFF:
		return models.LABEL_POSITIVE
	case compound <= config.LABEL_NEGATIVE_CUTOFF:
		return models.LABEL_NEGATIVE
	default:
		return models.LABEL_NEUTRAL
	}
}

// Bucket refines Label using the configured extremity thresholds. The very
// thresholds are checked before the plain cutoffs.
func (c *Classifier) Bucket(compound float64) string {
	switch {
	case compound >= c.veryPositive:
		return models.BUCKET_VERY_POSITIVE
	case compound >= config.LABEL_POSITIVE_CUTOFF:
		return models.BUCKET_POSITIVE
	case compound <= c.veryNegative:
		return models.BUCKET_VERY_NEGATIVE
	case compound <= config.LABEL_NEGATIVE_CUTOFF:
		return models.BUCKET_NEGATIVE
	default:
		return models.BUCKET_NEUTRAL
	}
}

// Normalize renders markdown to plain text, strips URLs and collapses whitespace.
func Normalize(input string) string {
	text := ConvertMarkdownToText(input)
	text = RemoveLinks(text)
	return strings.Join(strings.Fields(text), " ")
}

func RemoveLinks(input string) string {
	return urlPattern.ReplaceAllString(input, "")
}

// ConvertMarkdownToText keeps the visible text of markdown, including the text
// of links. Smart punctuation is disabled so apostrophes reach the lexicon as typed.
func ConvertMarkdownToText(input string) string {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.HTMLFlagsNone,
	})
	output := blackfriday.Run([]byte(input),
		blackfriday.WithNoExtensions(),
		blackfriday.WithRenderer(renderer),
	)

	output = bytes.ReplaceAll(output, []byte("\n"), []byte(" "))
	plain := tagPattern.ReplaceAllString(string(output), "")
	return html.UnescapeString(plain)
}

// normalizeComponents rescales the three scores to sum to 1. An all-zero
// triple maps to fully neutral.
func normalizeComponents(pos, neu, neg float64) (float64, float64, float64) {
	pos, neu, neg = math.Max(pos, 0), math.Max(neu, 0), math.Max(neg, 0)
	sum := pos + neu + neg
	if sum == 0 {
		return 0, 1, 0
	}
	return pos / sum, neu / sum, neg / sum
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
