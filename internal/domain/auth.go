package domain

// SubjectType differentiates portal accounts from system actors in tokens and events.
type SubjectType string

const (
	SubjectTypeAccount SubjectType = "ACCOUNT"
	SubjectTypeSystem  SubjectType = "SYSTEM"
)
