package crm

import (
	"fmt"
	"slices"
	"time"
)

type DealStage string

const (
	StageQualification DealStage = "qualification"
	StageNeedsAnalysis DealStage = "needs_analysis"
	StageProposal      DealStage = "proposal"
	StageNegotiation   DealStage = "negotiation"
	StageClosedWon     DealStage = "closed_won"
	StageClosedLost    DealStage = "closed_lost"
)

var stageProbabilities = map[DealStage]int{
	StageQualification: 10,
	StageNeedsAnalysis: 25,
	StageProposal:      50,
	StageNegotiation:   75,
	StageClosedWon:     100,
	StageClosedLost:    0,
}

func (s DealStage) Valid() bool {
	_, ok := stageProbabilities[s]
	return ok
}

func (s DealStage) Closed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// Probability is the default win probability for a stage.
func (s DealStage) Probability() int {
	return stageProbabilities[s]
}

type ForecastCategory string

const (
	ForecastPipeline ForecastCategory = "pipeline"
	ForecastBestCase ForecastCategory = "best_case"
	ForecastCommit   ForecastCategory = "commit"
	ForecastClosed   ForecastCategory = "closed"
)

func Forecast(stage DealStage, probability int) ForecastCategory {
	switch {
	case stage.Closed():
		return ForecastClosed
	case probability >= 75:
		return ForecastCommit
	case probability >= 50:
		return ForecastBestCase
	default:
		return ForecastPipeline
	}
}

// StageEntry records one stay in a stage. DurationDays is set once the deal
// moves on.
type StageEntry struct {
	Stage        DealStage `json:"stage"`
	EnteredAt    time.Time `json:"enteredAt"`
	DurationDays *int      `json:"duration,omitempty"`
	MovedBy      uint      `json:"movedBy"`
}

// RotateStageHistory returns d moved into stage: the open history entry is closed
// with its duration in whole days, a new entry is appended, and probability,
// forecast and close date follow the new stage. Moving a deal into the stage it is
// already in returns it unchanged. d itself is not modified.
func RotateStageHistory(d Deal, stage DealStage, movedBy uint, now time.Time) (Deal, error) {
	if !stage.Valid() {
		return d, fmt.Errorf("unknown deal stage %q", stage)
	}
	if d.Stage == stage && len(d.StageHistory) > 0 {
		return d, nil
	}

	history := slices.Clone(d.StageHistory)
	if n := len(history); n > 0 {
		days := int(now.Sub(history[n-1].EnteredAt).Hours() / 24)
		history[n-1].DurationDays = &days
	}
	history = append(history, StageEntry{Stage: stage, EnteredAt: now, MovedBy: movedBy})

	d.StageHistory = history
	d.Stage = stage
	d.Probability = stage.Probability()
	d.ForecastCategory = Forecast(stage, d.Probability)
	if stage.Closed() {
		closed := now
		d.ActualCloseDate = &closed
	}
	return d, nil
}

// DaysInStage counts whole days since the deal entered its current stage.
func (d *Deal) DaysInStage(now time.Time) int {
	if len(d.StageHistory) == 0 {
		return 0
	}
	return int(now.Sub(d.StageHistory[len(d.StageHistory)-1].EnteredAt).Hours() / 24)
}
