package domain

import (
	"fmt"
	"math"
)

// ComparisonResult compares the current temperature with the same hour
// yesterday. Delta is rounded to 0.1 and its sign drives the message wording.
type ComparisonResult struct {
	Now       float64 `json:"now"`
	Yesterday float64 `json:"yesterday"`
	Delta     float64 `json:"delta"`
}

// NewComparison builds a result from the two slot temperatures.
func NewComparison(now, yesterday float64) ComparisonResult {
	return ComparisonResult{
		Now:       now,
		Yesterday: yesterday,
		Delta:     Round1(now - yesterday),
	}
}

// DayExtremes holds one local calendar day's maximum and minimum temperature.
type DayExtremes struct {
	Max float64 `json:"max"`
	Min float64 `json:"min"`
}

// ExtremesComparison compares today's extremes with yesterday's.
type ExtremesComparison struct {
	TodayMax float64 `json:"today_max"`
	TodayMin float64 `json:"today_min"`
	YestMax  float64 `json:"yest_max"`
	YestMin  float64 `json:"yest_min"`
	DeltaMax float64 `json:"delta_max"`
	DeltaMin float64 `json:"delta_min"`
}

// NewExtremesComparison builds the comparison from two days of extremes.
func NewExtremesComparison(today, yest DayExtremes) ExtremesComparison {
	return ExtremesComparison{
		TodayMax: today.Max,
		TodayMin: today.Min,
		YestMax:  yest.Max,
		YestMin:  yest.Min,
		DeltaMax: Round1(today.Max - yest.Max),
		DeltaMin: Round1(today.Min - yest.Min),
	}
}

// Round1 rounds to one decimal place, half away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Notification is one outbound push message.
type Notification struct {
	Destination string `json:"destination"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

const notificationTitle = "어제보다"

// Message renders the user-facing push content for a comparison. A positive
// delta picks the "warmer" phrase, zero or negative the "colder" phrase.
func (r ComparisonResult) Message() (title, body string) {
	word := "춥네요"
	if r.Delta > 0 {
		word = "덥네요"
	}
	body = fmt.Sprintf("오늘은(%.1f°C), 어제보다 살짝더 %s.(%+.1f°C)", r.Now, word, r.Delta)
	return notificationTitle, body
}
