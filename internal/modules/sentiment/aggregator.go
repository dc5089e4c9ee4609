package sentiment

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

// Blend weights when both channels have data for a day.
const (
	newsBlendWeight   = 0.6
	socialBlendWeight = 0.4
)

// Aggregate rolls classified articles and posts up into one DailySentiment
// row per civil day. Social contributions are engagement-weighted: a heavily
// upvoted post moves the needle more than a zero-score one.
func Aggregate(symbol string, articles []domain.NewsArticle, posts []domain.SocialPost) []domain.DailySentiment {
	type bucket struct {
		newsSum     float64
		newsCount   int64
		socialSum   float64
		socialInt   float64
		socialCount int64
	}
	days := make(map[time.Time]*bucket)

	day := func(t time.Time) *bucket {
		d := dateparse.CivilDate(t)
		b, ok := days[d]
		if !ok {
			b = &bucket{}
			days[d] = b
		}
		return b
	}

	for _, a := range articles {
		b := day(a.PublishDate)
		b.newsSum += a.Sentiment
		b.newsCount++
	}
	for _, p := range posts {
		b := day(p.CreatedUTC)
		weight := engagementWeight(p)
		b.socialSum += p.Sentiment * weight
		b.socialInt += weight
		b.socialCount++
	}

	out := make([]domain.DailySentiment, 0, len(days))
	for d, b := range days {
		agg := domain.DailySentiment{
			Symbol:      symbol,
			Date:        d,
			NewsCount:   b.newsCount,
			SocialCount: b.socialCount,
		}
		if b.newsCount > 0 {
			agg.NewsSentiment = b.newsSum / float64(b.newsCount)
		}
		if b.socialInt > 0 {
			agg.SocialSentiment = b.socialSum / b.socialInt
		}
		agg.Combined = combine(agg)
		agg.Quality = quality(b.newsCount, b.socialCount)
		out = append(out, agg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// engagementWeight grows logarithmically with post score so megathreads do
// not completely drown out ordinary posts.
func engagementWeight(p domain.SocialPost) float64 {
	score := p.Score
	if score < 0 {
		score = 0
	}
	return 1 + math.Log1p(float64(score))
}

func combine(d domain.DailySentiment) float64 {
	switch {
	case d.NewsCount > 0 && d.SocialCount > 0:
		return clamp(newsBlendWeight*d.NewsSentiment + socialBlendWeight*d.SocialSentiment)
	case d.NewsCount > 0:
		return clamp(d.NewsSentiment)
	case d.SocialCount > 0:
		return clamp(d.SocialSentiment)
	default:
		return 0
	}
}

// quality saturates at 5 items per channel; a single-channel day tops out
// at that channel's blend weight.
func quality(newsCount, socialCount int64) float64 {
	sat := func(n int64) float64 {
		f := float64(n) / 5
		if f > 1 {
			return 1
		}
		return f
	}
	return newsBlendWeight*sat(newsCount) + socialBlendWeight*sat(socialCount)
}
