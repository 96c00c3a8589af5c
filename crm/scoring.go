package crm

const maxScore = 100

var lifecycleScores = map[LifecycleStage]int{
	LifecycleSubscriber:         5,
	LifecycleLead:               10,
	LifecycleMarketingQualified: 20,
	LifecycleSalesQualified:     30,
	LifecycleOpportunity:        40,
	LifecycleCustomer:           50,
	LifecycleEvangelist:         60,
}

// ComputeLeadScore rates a contact by profile completeness and lifecycle stage.
func ComputeLeadScore(c Contact) int {
	score := 0
	if c.EmailOptIn {
		score += 10
	}
	if c.JobTitle != "" {
		score += 10
	}
	if c.PhonePrimary != "" || c.PhoneMobile != "" {
		score += 10
	}
	if c.CompanyID != nil {
		score += 15
	}
	if c.LinkedIn != "" {
		score += 5
	}
	score += lifecycleScores[c.LifecycleStage]

	return min(score, maxScore)
}

// ComputeHealthScore starts every company at 50 and adds for profile data and
// relationship type.
func ComputeHealthScore(c Company) int {
	score := 50
	for _, present := range []bool{
		c.Website != "",
		c.Phone != "",
		c.Email != "",
		c.Industry != "" && c.Industry != "other",
		c.Size != "",
	} {
		if present {
			score += 5
		}
	}

	switch c.Type {
	case CompanyCustomer:
		score += 20
	case CompanyPartner:
		score += 15
	}

	if c.AnnualRevenue > 0 {
		score += 5
	}

	return min(score, maxScore)
}
