package sentiment

import (
	"math"

	"github.com/spacesedan/sentiharvest/internal/models"
)

// Summarize reports label counts for a scored batch. Percentages have one
// decimal place and the average compound three. AvgScore is left at zero since
// a SentimentResult carries no popularity score.
func Summarize(results []models.SentimentResult) models.SentimentSummary {
	var s models.SentimentSummary
	if len(results) == 0 {
		return s
	}

	var compound float64
	for _, r := range results {
		switch r.Label {
		case models.LABEL_POSITIVE:
			s.PositiveCount++
		case models.LABEL_NEGATIVE:
			s.NegativeCount++
		default:
			s.NeutralCount++
		}
		compound += r.Compound
	}

	s.Total = len(results)
	s.PositivePct = pct(s.PositiveCount, s.Total)
	s.NeutralPct = pct(s.NeutralCount, s.Total)
	s.NegativePct = pct(s.NegativeCount, s.Total)
	s.AvgCompound = round3(compound / float64(s.Total))
	return s
}

func ItemResults(items []models.Item) []models.SentimentResult {
	out := make([]models.SentimentResult, len(items))
	for i, item := range items {
		out[i] = item.SentimentResult
	}
	return out
}

func ReplyResults(replies []models.Reply) []models.SentimentResult {
	out := make([]models.SentimentResult, len(replies))
	for i, reply := range replies {
		out[i] = reply.SentimentResult
	}
	return out
}

func pct(n, total int) float64 {
	return math.Round(float64(n)/float64(total)*1000) / 10
}
