package api

import (
	"context"
	"strings"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/store"
)

const (
	maxTitleLength = 200
	maxBodyLength  = 5000
	maxTags        = 10
)

// PostQuestionRequest contains a new question. Anonymous questions record no author.
type PostQuestionRequest struct {
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	AudioRef   string            `json:"audio_ref"`
	Tags       []string          `json:"tags"`
	Visibility models.Visibility `json:"visibility"`
	Anonymous  bool              `json:"anonymous"`
}

func cleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		cleaned = append(cleaned, tag)
	}
	return cleaned
}

func (s *LedgerService) PostQuestion(ctx context.Context, actorId string, req PostQuestionRequest) (*models.Question, error) {
	title := strings.TrimSpace(req.Title)
	if actorId == "" {
		return nil, invalid("actor_id is required")
	}
	if title == "" || len(title) > maxTitleLength {
		return nil, invalid("title must be between 1 and %d characters", maxTitleLength)
	}
	if len(req.Body) > maxBodyLength {
		return nil, invalid("body must be at most %d characters", maxBodyLength)
	}
	tags := cleanTags(req.Tags)
	if len(tags) > maxTags {
		return nil, invalid("at most %d tags are allowed", maxTags)
	}
	visibility := req.Visibility
	switch visibility {
	case "":
		visibility = models.VisibilityPublic
	case models.VisibilityPublic, models.VisibilityFollowers:
	default:
		return nil, invalid("visibility must be %q or %q", models.VisibilityPublic, models.VisibilityFollowers)
	}
	// Followers of nobody would never see it
	if req.Anonymous && visibility == models.VisibilityFollowers {
		return nil, invalid("anonymous questions must be public")
	}

	authorId := actorId
	if req.Anonymous {
		authorId = ""
	}
	question, err := s.db.CreateQuestion(ctx, store.CreateQuestionParams{
		AuthorId:   authorId,
		Title:      title,
		Body:       req.Body,
		AudioRef:   req.AudioRef,
		Tags:       tags,
		Visibility: visibility,
	})
	if err != nil {
		return nil, err
	}
	s.wake()
	return question, nil
}

// GetQuestion returns a question with its answers. Followers-only questions are visible
// to their author and the author's followers.
func (s *LedgerService) GetQuestion(ctx context.Context, viewerId, questionId string) (*models.QuestionDetail, error) {
	question, err := s.db.GetQuestion(ctx, questionId)
	if err != nil {
		return nil, err
	}
	if question.Visibility == models.VisibilityFollowers && question.AuthorId != viewerId {
		following, err := s.db.IsFollowing(ctx, viewerId, question.AuthorId)
		if err != nil {
			return nil, err
		}
		if !following {
			return nil, store.ErrPermissionDenied
		}
	}

	answers, err := s.db.ListAnswers(ctx, questionId)
	if err != nil {
		return nil, err
	}
	liked, err := s.db.HasLike(ctx, viewerId, questionId)
	if err != nil {
		return nil, err
	}

	view := s.View(viewerId)
	view.SetLike(questionId, liked, question.LikeCount)
	view.SetQuestion(questionId, true)
	for _, a := range answers {
		view.SetAnswer(a.Id, true)
	}

	return &models.QuestionDetail{Question: *question, Answers: answers, LikedByMe: liked}, nil
}

func (s *LedgerService) ListQuestions(ctx context.Context, viewerId string, followingOnly bool, tag string, limit, offset int) ([]models.Question, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.db.ListQuestions(ctx, store.ListQuestionsParams{
		ViewerId:      viewerId,
		FollowingOnly: followingOnly,
		Tag:           strings.ToLower(strings.TrimSpace(tag)),
		Limit:         limit,
		Offset:        offset,
	})
}

// PostAnswer answers a question the actor can see and notifies its author
func (s *LedgerService) PostAnswer(ctx context.Context, actorId, questionId, body, audioRef string) (*models.Answer, error) {
	body = strings.TrimSpace(body)
	if body == "" && audioRef == "" {
		return nil, invalid("an answer needs a body or an audio recording")
	}
	if len(body) > maxBodyLength {
		return nil, invalid("body must be at most %d characters", maxBodyLength)
	}
	if _, err := s.GetQuestion(ctx, actorId, questionId); err != nil {
		return nil, err
	}

	answer, err := s.db.CreateAnswer(ctx, store.CreateAnswerParams{
		QuestionId: questionId,
		AuthorId:   actorId,
		Body:       body,
		AudioRef:   audioRef,
	})
	if err != nil {
		return nil, err
	}
	s.View(actorId).SetAnswer(answer.Id, true)
	s.wake()
	return answer, nil
}

func (s *LedgerService) SendMessage(ctx context.Context, senderId, recipientId, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxBodyLength {
		return nil, invalid("message must be between 1 and %d characters", maxBodyLength)
	}
	message, err := s.db.SendMessage(ctx, store.SendMessageParams{
		SenderId:    senderId,
		RecipientId: recipientId,
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	s.wake()
	return message, nil
}

// MarkMessageRead records that the recipient read the message
func (s *LedgerService) MarkMessageRead(ctx context.Context, accountId, messageId string) error {
	if err := s.db.MarkMessageRead(ctx, messageId, accountId); err != nil {
		return err
	}
	s.wake()
	return nil
}

// MarkMessageForPurge lets the next sweep delete the message once it has been read
func (s *LedgerService) MarkMessageForPurge(ctx context.Context, accountId, messageId string) error {
	if err := s.db.MarkMessageForPurge(ctx, messageId, accountId); err != nil {
		return err
	}
	s.wake()
	return nil
}

func (s *LedgerService) ListMessages(ctx context.Context, accountId string, limit, offset int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.db.ListMessages(ctx, accountId, limit, offset)
}

func (s *LedgerService) ListNotifications(ctx context.Context, accountId string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.db.ListNotifications(ctx, accountId, limit, offset)
}

// MarkNotificationsRead marks the account's notifications read. A non-empty questionId
// limits it to notifications about that question.
func (s *LedgerService) MarkNotificationsRead(ctx context.Context, accountId, questionId string) (int, error) {
	marked, err := s.db.MarkNotificationsRead(ctx, accountId, questionId)
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		s.wake()
	}
	return marked, nil
}
