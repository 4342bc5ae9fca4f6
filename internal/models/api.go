package models

import "time"

// AccountProfile is the public view of an account
type AccountProfile struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	AvatarUrl string `json:"avatar_url,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
	Balance   int64  `json:"balance"`
}

// TransactionRecord represents a coin movement in the account's history
type TransactionRecord struct {
	Id           string    `json:"id"`
	Kind         string    `json:"kind"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActionResult is what an engagement action reports back to the caller
type ActionResult struct {
	Action     string `json:"action"`
	TargetId   string `json:"target_id"`
	Noop       bool   `json:"noop,omitempty"`
	Balance    int64  `json:"balance"`
	LikeCount  int    `json:"like_count,omitempty"`
	Liked      bool   `json:"liked,omitempty"`
	Following  bool   `json:"following,omitempty"`
	MutationId string `json:"mutation_id,omitempty"`
}

// ToProfile converts an account to its public view
func (a Account) ToProfile() AccountProfile {
	return AccountProfile{
		Id:        a.Id,
		Name:      a.Name,
		AvatarUrl: a.AvatarUrl,
		IsAdmin:   a.IsAdmin,
		Balance:   a.Balance,
	}
}

// QuestionDetail is a question with its answers as seen by one viewer
type QuestionDetail struct {
	Question  Question `json:"question"`
	Answers   []Answer `json:"answers"`
	LikedByMe bool     `json:"liked_by_me"`
}
