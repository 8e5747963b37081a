package domain

// Category is the kind of support request.
type Category string

const (
	CategorySwagDelay       Category = "Swag Delay"
	CategorySubmissionIssue Category = "Submission Issue"
	CategoryLoginTrouble    Category = "Login Trouble"
	CategoryLoginIssue      Category = "Login Issue"
	CategorySponsorship     Category = "Sponsorship"
	CategoryOther           Category = "Other"
)

// Categories lists every representable category.
var Categories = []Category{
	CategorySwagDelay, CategorySubmissionIssue, CategoryLoginTrouble,
	CategoryLoginIssue, CategorySponsorship, CategoryOther,
}

// ModelCategories is the closed set a model classifier may answer with.
// Login Issue is produced by keyword rules only.
var ModelCategories = []Category{
	CategorySwagDelay, CategorySubmissionIssue, CategoryLoginTrouble,
	CategorySponsorship, CategoryOther,
}

// Priority is the urgency of a support request.
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Team is the group that owns a support request.
type Team string

const (
	TeamTechSupport Team = "Tech Support"
	TeamSponsorship Team = "Sponsorship"
	TeamLogistics   Team = "Logistics"
	TeamGeneral     Team = "General"
	TeamAdmin       Team = "Admin"
)

var Teams = []Team{TeamTechSupport, TeamSponsorship, TeamLogistics, TeamGeneral, TeamAdmin}

// Classification is the triple attached to every ingested message.
// Every field is always a member of its own set.
type Classification struct {
	Category Category `json:"category"`
	Priority Priority `json:"priority"`
	Team     Team     `json:"team"`
}

// FallbackClassification is used whenever a classifier cannot decide.
func FallbackClassification() Classification {
	return Classification{Category: CategoryOther, Priority: PriorityMedium, Team: TeamGeneral}
}

// ParseCategory returns the category named s, or Other with ok=false.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryOther, false
}

// ParseModelCategory is ParseCategory restricted to ModelCategories.
func ParseModelCategory(s string) (Category, bool) {
	for _, c := range ModelCategories {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryOther, false
}

// ParsePriority returns the priority named s, or Medium with ok=false.
func ParsePriority(s string) (Priority, bool) {
	for _, p := range Priorities {
		if string(p) == s {
			return p, true
		}
	}
	return PriorityMedium, false
}

// ParseTeam returns the team named s, or General with ok=false.
func ParseTeam(s string) (Team, bool) {
	for _, t := range Teams {
		if string(t) == s {
			return t, true
		}
	}
	return TeamGeneral, false
}
