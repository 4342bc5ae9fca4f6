/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package store

import (
	"context"

	"qna-coin-ledger-go/internal/models"
)

// CreateAccountParams contains the parameters for registering an account.
type CreateAccountParams struct {
	Id           string
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	InitialCoins int64
}

// UpdateProfileParams changes an account's public profile and charges Cost in the same
// transaction. Cost is zero for admins.
type UpdateProfileParams struct {
	AccountId string
	Name      string
	AvatarUrl string
	Cost      int64
	Reference string
}

// AdjustBalanceParams describes a relative balance change. The store rejects any change
// that would take the balance below zero unless AllowClamp is set, in which case a debit
// is reduced to the available balance.
type AdjustBalanceParams struct {
	AccountId  string
	Delta      int64
	Kind       string
	Reference  string
	Reason     string
	AllowClamp bool
}

// CreateQuestionParams contains the parameters for posting a question.
type CreateQuestionParams struct {
	AuthorId   string // empty for anonymous
	Title      string
	Body       string
	AudioRef   string
	Tags       []string
	Visibility models.Visibility
}

// ListQuestionsParams filters the question feed for a viewer.
type ListQuestionsParams struct {
	ViewerId      string
	FollowingOnly bool
	Tag           string
	Limit         int
	Offset        int
}

// CreateAnswerParams contains the parameters for answering a question.
type CreateAnswerParams struct {
	QuestionId string
	AuthorId   string
	Body       string
	AudioRef   string
}

// DeleteContentParams deletes an answer or question and charges ActorId Cost coins in the
// same transaction. Authorization is decided before the call.
type DeleteContentParams struct {
	Id        string
	ActorId   string
	Cost      int64
	Reference string
}

// LikeParams creates or removes a like and moves Reward coins to or from AuthorId.
type LikeParams struct {
	AccountId  string
	QuestionId string
	AuthorId   string // empty for anonymous questions
	Reward     int64
	Reference  string
}

// SendMessageParams contains the parameters for a direct message.
type SendMessageParams struct {
	SenderId    string
	RecipientId string
	Body        string
}

// LedgerStore defines the contract that every backend must satisfy.
type LedgerStore interface {
	// --- Accounts ---
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccounts(ctx context.Context) ([]models.Account, error)
	NameTaken(ctx context.Context, name, exceptAccountId string) (bool, error)
	UpdateProfile(ctx context.Context, params UpdateProfileParams) (*models.Account, error)

	// --- Balances ---
	GetBalance(ctx context.Context, accountId string) (int64, error)
	AdjustBalance(ctx context.Context, params AdjustBalanceParams) (*models.CoinTransaction, error)
	GetTransactionHistory(ctx context.Context, accountId string, limit, offset int) ([]models.CoinTransaction, error)
	ReconcileBalance(ctx context.Context, accountId string) error

	// --- Questions and answers ---
	CreateQuestion(ctx context.Context, params CreateQuestionParams) (*models.Question, error)
	GetQuestion(ctx context.Context, questionId string) (*models.Question, error)
	ListQuestions(ctx context.Context, params ListQuestionsParams) ([]models.Question, error)
	CreateAnswer(ctx context.Context, params CreateAnswerParams) (*models.Answer, error)
	GetAnswer(ctx context.Context, answerId string) (*models.Answer, error)
	ListAnswers(ctx context.Context, questionId string) ([]models.Answer, error)
	DeleteAnswer(ctx context.Context, params DeleteContentParams) error
	DeleteQuestion(ctx context.Context, params DeleteContentParams) error

	// --- Engagement ---
	CreateLike(ctx context.Context, params LikeParams) error
	DeleteLike(ctx context.Context, params LikeParams) error
	HasLike(ctx context.Context, accountId, questionId string) (bool, error)
	CreateFollow(ctx context.Context, followerId, followeeId string) error
	DeleteFollow(ctx context.Context, followerId, followeeId string) error
	IsFollowing(ctx context.Context, followerId, followeeId string) (bool, error)

	// --- Messages and notifications ---
	SendMessage(ctx context.Context, params SendMessageParams) (*models.Message, error)
	MarkMessageRead(ctx context.Context, messageId, recipientId string) error
	MarkMessageForPurge(ctx context.Context, messageId, recipientId string) error
	ListMessages(ctx context.Context, accountId string, limit, offset int) ([]models.Message, error)
	ListNotifications(ctx context.Context, accountId string, limit, offset int) ([]models.Notification, error)
	MarkNotificationsRead(ctx context.Context, accountId, questionId string) (int, error)

	// --- Change log ---
	CountWhere(ctx context.Context, filter models.Filter) (models.CountSnapshot, error)
	DeleteWhere(ctx context.Context, filter models.Filter) (int, error)
	ListChangesSince(ctx context.Context, afterSeq int64, limit int) ([]models.ChangeEvent, error)
	LatestChangeSeq(ctx context.Context) (int64, error)

	// --- Lifecycle ---
	Close()
}
