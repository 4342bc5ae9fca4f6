package models

import "time"

// Relation names a watched table in the change log
type Relation string

const (
	RelationMessages      Relation = "messages"
	RelationNotifications Relation = "notifications"
	RelationAnswers       Relation = "answers"
	RelationLikes         Relation = "likes"
	RelationFollows       Relation = "follows"
	RelationQuestions     Relation = "questions"
	RelationBalances      Relation = "balances"
)

// EventType is the kind of row change
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// RowState captures the parts of a row that derived counters care about
type RowState struct {
	Exists bool `json:"exists"`
	Unread bool `json:"unread"`
}

// ChangeEvent is one row of the change log. Seq is strictly increasing per store.
type ChangeEvent struct {
	Seq       int64     `json:"seq"`
	Id        string    `json:"id"`
	Relation  Relation  `json:"relation"`
	Type      EventType `json:"type"`
	EntityId  string    `json:"entity_id"`
	AccountId string    `json:"account_id"` // recipient or owner the row is scoped to
	ParentId  string    `json:"parent_id"`  // question id for answers and likes
	Before    RowState  `json:"before"`
	After     RowState  `json:"after"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter scopes counts, deletes and subscriptions.
// Unread and Purgeable narrow CountWhere/DeleteWhere; event matching ignores them
// because an update can move a row in or out of either set.
type Filter struct {
	Relation  Relation
	AccountId string
	ParentId  string
	Unread    bool
	Purgeable bool
}

// Matches reports whether the event belongs to the filtered relation and scope
func (f Filter) Matches(ev ChangeEvent) bool {
	if f.Relation != "" && f.Relation != ev.Relation {
		return false
	}
	if f.AccountId != "" && f.AccountId != ev.AccountId {
		return false
	}
	if f.ParentId != "" && f.ParentId != ev.ParentId {
		return false
	}
	return true
}

// CountSnapshot is an authoritative count taken at change-log position AsOfSeq
type CountSnapshot struct {
	Count   int
	AsOfSeq int64
}
