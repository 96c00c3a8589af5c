// Package crm holds the business records guarded by the authorization gate and
// the rules applied to them before they are persisted.
package crm

import (
	"errors"
	"slices"
	"time"
)

var ErrNotFound = errors.New("resource not found")

// Owned is implemented by every record whose access is decided per account.
// An OwnerID of zero means the record is unowned.
type Owned interface {
	OwnerID() uint
	HasSpecialAccess(accountID uint) bool
}

// CanAccess reports whether a non-admin account may act on o.
func CanAccess(o Owned, accountID uint) bool {
	owner := o.OwnerID()
	if owner == 0 || owner == accountID {
		return true
	}
	return o.HasSpecialAccess(accountID)
}

type LifecycleStage string

const (
	LifecycleSubscriber         LifecycleStage = "subscriber"
	LifecycleLead               LifecycleStage = "lead"
	LifecycleMarketingQualified LifecycleStage = "marketing_qualified"
	LifecycleSalesQualified     LifecycleStage = "sales_qualified"
	LifecycleOpportunity        LifecycleStage = "opportunity"
	LifecycleCustomer           LifecycleStage = "customer"
	LifecycleEvangelist         LifecycleStage = "evangelist"
)

type Contact struct {
	ID             uint           `json:"id"`
	FirstName      string         `json:"firstName"`
	LastName       string         `json:"lastName"`
	Email          string         `json:"email"`
	JobTitle       string         `json:"jobTitle,omitempty"`
	PhonePrimary   string         `json:"phonePrimary,omitempty"`
	PhoneMobile    string         `json:"phoneMobile,omitempty"`
	CompanyID      *uint          `json:"companyId,omitempty"`
	LinkedIn       string         `json:"linkedin,omitempty"`
	EmailOptIn     bool           `json:"emailOptIn"`
	LifecycleStage LifecycleStage `json:"lifecycleStage"`
	LeadScore      int            `json:"leadScore"`
	Owner          uint           `json:"owner"`
	CustomFields   CustomFields   `json:"customFields,omitempty"`
}

func (c *Contact) OwnerID() uint { return c.Owner }
func (c *Contact) HasSpecialAccess(_ uint) bool { return false }

type CompanyType string

const (
	CompanyProspect   CompanyType = "prospect"
	CompanyCustomer   CompanyType = "customer"
	CompanyPartner    CompanyType = "partner"
	CompanyVendor     CompanyType = "vendor"
	CompanyCompetitor CompanyType = "competitor"
	CompanyOther      CompanyType = "other"
)

type Company struct {
	ID            uint         `json:"id"`
	Name          string       `json:"name"`
	Website       string       `json:"website,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Email         string       `json:"email,omitempty"`
	Industry      string       `json:"industry"`
	Size          string       `json:"size,omitempty"`
	Type          CompanyType  `json:"type"`
	AnnualRevenue float64      `json:"annualRevenue,omitempty"`
	HealthScore   int          `json:"healthScore"`
	Owner         uint         `json:"owner"`
	CustomFields  CustomFields `json:"customFields,omitempty"`
}

func (c *Company) OwnerID() uint { return c.Owner }
func (c *Company) HasSpecialAccess(_ uint) bool { return false }

type Deal struct {
	ID                uint             `json:"id"`
	Title             string           `json:"title"`
	Value             float64          `json:"value"`
	Currency          string           `json:"currency"`
	Stage             DealStage        `json:"stage"`
	Probability       int              `json:"probability"`
	ExpectedCloseDate time.Time        `json:"expectedCloseDate"`
	ActualCloseDate   *time.Time       `json:"actualCloseDate,omitempty"`
	ForecastCategory  ForecastCategory `json:"forecastCategory"`
	StageHistory      []StageEntry     `json:"stageHistory,omitempty"`
	Owner             uint             `json:"owner"`
	CustomFields      CustomFields     `json:"customFields,omitempty"`
}

func (d *Deal) OwnerID() uint { return d.Owner }
func (d *Deal) HasSpecialAccess(_ uint) bool { return false }

// WeightedValue is the deal value scaled by its win probability.
func (d *Deal) WeightedValue() float64 {
	return d.Value * float64(d.Probability) / 100
}

// Task has no owner of its own; the reporter plays that role.
type Task struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Assignee uint   `json:"assignee"`
	Reporter uint   `json:"reporter"`
	Watchers []uint `json:"watchers,omitempty"`
}

func (t *Task) OwnerID() uint { return t.Reporter }

func (t *Task) HasSpecialAccess(accountID uint) bool {
	return accountID != 0 && (t.Assignee == accountID || slices.Contains(t.Watchers, accountID))
}

type Activity struct {
	ID           uint   `json:"id"`
	Type         string `json:"type"`
	Subject      string `json:"subject"`
	Owner        uint   `json:"owner"`
	Participants []uint `json:"participants,omitempty"`
	// Assignee of the follow-up task, if any.
	Assignee uint `json:"assignee,omitempty"`
}

func (a *Activity) OwnerID() uint { return a.Owner }

func (a *Activity) HasSpecialAccess(accountID uint) bool {
	return accountID != 0 && (a.Assignee == accountID || slices.Contains(a.Participants, accountID))
}
