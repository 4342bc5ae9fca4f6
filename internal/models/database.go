package models

import "time"

// Visibility controls who can see a question
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
)

// NotificationType identifies why a notification was raised
type NotificationType string

const (
	NotificationAnswer  NotificationType = "answer"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
)

// Account represents a platform user and their coin balance
type Account struct {
	Id           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	AvatarUrl    string    `db:"avatar_url" json:"avatar_url,omitempty"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	Balance      int64     `db:"balance" json:"balance"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Question is a post that other accounts can answer and like.
// AuthorId is empty for anonymous questions.
type Question struct {
	Id          string     `db:"id" json:"id"`
	AuthorId    string     `db:"author_id" json:"author_id"`
	Title       string     `db:"title" json:"title"`
	Body        string     `db:"body" json:"body"`
	AudioRef    string     `db:"audio_ref" json:"audio_ref,omitempty"`
	Tags        []string   `db:"tags" json:"tags"`
	Visibility  Visibility `db:"visibility" json:"visibility"`
	LikeCount   int        `db:"like_count" json:"like_count"`
	AnswerCount int        `db:"answer_count" json:"answer_count"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Anonymous reports whether the question has no recoverable author
func (q Question) Anonymous() bool {
	return q.AuthorId == ""
}

// Answer belongs to a question
type Answer struct {
	Id         string    `db:"id" json:"id"`
	QuestionId string    `db:"question_id" json:"question_id"`
	AuthorId   string    `db:"author_id" json:"author_id"`
	Body       string    `db:"body" json:"body"`
	AudioRef   string    `db:"audio_ref" json:"audio_ref,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Like is a unique (account, question) pair
type Like struct {
	AccountId  string    `db:"account_id" json:"account_id"`
	QuestionId string    `db:"question_id" json:"question_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Follow is a unique (follower, followee) pair
type Follow struct {
	FollowerId string    `db:"follower_id" json:"follower_id"`
	FolloweeId string    `db:"followee_id" json:"followee_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Message is a direct message between two accounts
type Message struct {
	Id          string     `db:"id" json:"id"`
	SenderId    string     `db:"sender_id" json:"sender_id"`
	RecipientId string     `db:"recipient_id" json:"recipient_id"`
	Body        string     `db:"body" json:"body"`
	SentAt      time.Time  `db:"sent_at" json:"sent_at"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	PurgeMarked bool       `db:"purge_marked" json:"purge_marked"`
}

// Purgeable reports whether the sweep may delete the message
func (m Message) Purgeable() bool {
	return m.ReadAt != nil && m.PurgeMarked
}

// Notification tells a recipient about activity on their content
type Notification struct {
	Id          string           `db:"id" json:"id"`
	RecipientId string           `db:"recipient_id" json:"recipient_id"`
	ActorId     string           `db:"actor_id" json:"actor_id"`
	QuestionId  string           `db:"question_id" json:"question_id"`
	AnswerId    string           `db:"answer_id" json:"answer_id,omitempty"`
	Type        NotificationType `db:"type" json:"type"`
	Read        bool             `db:"is_read" json:"is_read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// CoinBalance represents current balance state (hot data)
type CoinBalance struct {
	AccountId         string    `db:"account_id" json:"account_id"`
	Balance           int64     `db:"balance" json:"balance"`
	LastTransactionId string    `db:"last_transaction_id" json:"last_transaction_id,omitempty"`
	Version           int64     `db:"version" json:"version"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// CoinTransaction represents immutable balance history (cold data)
type CoinTransaction struct {
	Id            string    `db:"id" json:"id"`
	AccountId     string    `db:"account_id" json:"account_id"`
	Kind          string    `db:"kind" json:"kind"`
	Amount        int64     `db:"amount" json:"amount"`
	BalanceBefore int64     `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64     `db:"balance_after" json:"balance_after"`
	Reference     string    `db:"reference" json:"reference,omitempty"`
	Reason        string    `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Coin transaction kinds
const (
	KindGrant          = "grant"
	KindLikeReward     = "like_reward"
	KindLikeRevoke     = "like_revoke"
	KindDeleteAnswer   = "delete_answer"
	KindDeleteQuestion = "delete_question"
	KindProfileUpdate  = "profile_update"
	KindAdjust         = "adjust"
)
