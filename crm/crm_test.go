package crm

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLeadScore(t *testing.T) {
	companyID := uint(7)

	tests := []struct {
		name    string
		contact Contact
		want    int
	}{
		{name: "empty", contact: Contact{}, want: 0},
		{name: "subscriber with opt in", contact: Contact{EmailOptIn: true, LifecycleStage: LifecycleSubscriber}, want: 15},
		{name: "mobile counts as phone", contact: Contact{PhoneMobile: "555"}, want: 10},
		{
			name: "complete sales qualified",
			contact: Contact{
				EmailOptIn:     true,
				JobTitle:       "CTO",
				PhonePrimary:   "555",
				CompanyID:      &companyID,
				LinkedIn:       "in/ada",
				LifecycleStage: LifecycleSalesQualified,
			},
			want: 80,
		},
		{
			name: "capped at 100",
			contact: Contact{
				EmailOptIn:     true,
				JobTitle:       "CTO",
				PhonePrimary:   "555",
				CompanyID:      &companyID,
				LinkedIn:       "in/ada",
				LifecycleStage: LifecycleEvangelist,
			},
			want: 100,
		},
		{name: "unknown stage adds nothing", contact: Contact{LifecycleStage: "zombie"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeLeadScore(tt.contact))
		})
	}
}

func TestComputeHealthScore(t *testing.T) {
	tests := []struct {
		name    string
		company Company
		want    int
	}{
		{name: "base", company: Company{Industry: "other"}, want: 50},
		{name: "industry set", company: Company{Industry: "technology"}, want: 55},
		{name: "partner", company: Company{Type: CompanyPartner}, want: 65},
		{
			name: "complete customer capped",
			company: Company{
				Website:       "https://acme.test",
				Phone:         "555",
				Email:         "hi@acme.test",
				Industry:      "technology",
				Size:          "11-50",
				Type:          CompanyCustomer,
				AnnualRevenue: 1e6,
			},
			want: 100,
		},
		{name: "revenue", company: Company{AnnualRevenue: 10, Type: CompanyVendor}, want: 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeHealthScore(tt.company))
		})
	}
}

func TestRotateStageHistory(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	deal, err := RotateStageHistory(Deal{Value: 1000}, StageQualification, 1, start)
	require.NoError(t, err)
	require.Len(t, deal.StageHistory, 1)
	assert.Equal(t, 10, deal.Probability)
	assert.Equal(t, ForecastPipeline, deal.ForecastCategory)
	assert.Nil(t, deal.StageHistory[0].DurationDays)

	moved, err := RotateStageHistory(deal, StageNegotiation, 2, start.Add(3*24*time.Hour+time.Hour))
	require.NoError(t, err)
	require.Len(t, moved.StageHistory, 2)
	require.NotNil(t, moved.StageHistory[0].DurationDays)
	assert.Equal(t, 3, *moved.StageHistory[0].DurationDays)
	assert.Equal(t, uint(2), moved.StageHistory[1].MovedBy)
	assert.Equal(t, 75, moved.Probability)
	assert.Equal(t, ForecastCommit, moved.ForecastCategory)
	assert.InDelta(t, 750.0, moved.WeightedValue(), 0.001)
	assert.Nil(t, moved.ActualCloseDate)

	assert.Nil(t, deal.StageHistory[0].DurationDays, "input deal is left untouched")

	closeAt := start.Add(10 * 24 * time.Hour)
	lost, err := RotateStageHistory(moved, StageClosedLost, 2, closeAt)
	require.NoError(t, err)
	assert.Equal(t, 0, lost.Probability)
	assert.Equal(t, ForecastClosed, lost.ForecastCategory)
	require.NotNil(t, lost.ActualCloseDate)
	assert.True(t, lost.ActualCloseDate.Equal(closeAt))
	assert.Equal(t, 7, lost.DaysInStage(closeAt.Add(7*24*time.Hour)))
}

func TestRotateStageHistory_SameStageAndUnknown(t *testing.T) {
	now := time.Now()
	deal, err := RotateStageHistory(Deal{}, StageProposal, 1, now)
	require.NoError(t, err)
	assert.Equal(t, ForecastBestCase, deal.ForecastCategory)

	same, err := RotateStageHistory(deal, StageProposal, 1, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, same.StageHistory, 1)

	_, err = RotateStageHistory(deal, "won_by_magic", 1, now)
	assert.Error(t, err)
}

func TestCanAccess(t *testing.T) {
	assert.True(t, CanAccess(&Deal{Owner: 1}, 1))
	assert.False(t, CanAccess(&Deal{Owner: 1}, 2))
	assert.True(t, CanAccess(&Contact{}, 2), "unowned records are open")
	assert.True(t, CanAccess(&Task{Reporter: 1, Assignee: 2}, 2))
	assert.True(t, CanAccess(&Task{Reporter: 1, Watchers: []uint{3, 4}}, 4))
	assert.False(t, CanAccess(&Task{Reporter: 1, Watchers: []uint{3}}, 5))
	assert.True(t, CanAccess(&Activity{Owner: 1, Participants: []uint{9}}, 9))
	assert.False(t, CanAccess(&Company{Owner: 1}, 9))
}

func TestCustomValue_JSON(t *testing.T) {
	when := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	fields := CustomFields{
		"tier":     String("gold"),
		"seats":    Number(42.5),
		"renewal":  Date(when),
		"priority": Bool(true),
		"notes":    Null(),
		"datelike": String("2026-05-04T12:30:00Z"),
	}

	data, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"renewal":{"$date":"2026-05-04T12:30:00Z"}`)
	assert.Contains(t, string(data), `"notes":null`)

	var decoded CustomFields
	require.NoError(t, json.Unmarshal(data, &decoded))

	s, ok := decoded["tier"].AsString()
	assert.True(t, ok)
	assert.Equal(t, "gold", s)

	n, ok := decoded["seats"].AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 42.5, n)

	d, ok := decoded["renewal"].AsDate()
	assert.True(t, ok)
	assert.True(t, d.Equal(when))

	b, ok := decoded["priority"].AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	assert.True(t, decoded["notes"].IsNull())
	assert.Equal(t, KindString, decoded["datelike"].Kind())
}

func TestCustomValue_RejectsUnsupported(t *testing.T) {
	var v CustomValue
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"nested":true}`), &v))
}
