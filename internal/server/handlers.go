package server

import (
	"errors"
	"net/http"
	"strconv"

	"qna-coin-ledger-go/internal/api"
	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/session"
	"qna-coin-ledger-go/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type answerInput struct {
	Body     string `json:"body"`
	AudioRef string `json:"audio_ref"`
}

type messageInput struct {
	RecipientId string `json:"recipient_id" binding:"required"`
	Body        string `json:"body" binding:"required"`
}

type markNotificationsInput struct {
	QuestionId string `json:"question_id"`
}

// statusFor maps an error from LedgerService to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrInvalidInput), errors.Is(err, store.ErrUnsupportedFilter):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, store.ErrSelfActionForbidden), errors.Is(err, store.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNameTaken), errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrActionInProgress),
		errors.Is(err, store.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, api.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrNetwork):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)

	body := gin.H{"error": api.UserMessage(err)}
	var funds *store.InsufficientFundsError
	if errors.As(err, &funds) {
		body["required"] = funds.Required
		body["current"] = funds.Current
	}
	c.AbortWithStatusJSON(status, body)
}

func bindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return limit, offset
}

func (s *Server) health(c *gin.Context) {
	if err := s.svc.HealthCheck(c.Request.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) signUp(c *gin.Context) {
	var input api.SignUpRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	result, err := s.svc.SignUp(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) login(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	result, err := s.svc.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) logout(c *gin.Context) {
	s.svc.Logout(currentSession(c).Token)
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	profile, err := s.svc.GetProfile(c.Request.Context(), currentSession(c).AccountId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) updateProfile(c *gin.Context) {
	var input api.UpdateProfileRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	profile, err := s.svc.UpdateProfile(c.Request.Context(), currentSession(c).AccountId, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) balance(c *gin.Context) {
	balance, err := s.svc.GetUserBalance(c.Request.Context(), currentSession(c).AccountId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) transactions(c *gin.Context) {
	limit, offset := pagination(c)
	history, err := s.svc.GetTransactionHistory(c.Request.Context(), currentSession(c).AccountId, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) profile(c *gin.Context) {
	profile, err := s.svc.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) listQuestions(c *gin.Context) {
	limit, offset := pagination(c)
	following := c.Query("following") == "true"
	questions, err := s.svc.ListQuestions(c.Request.Context(), currentSession(c).AccountId, following, c.Query("tag"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if questions == nil {
		questions = []models.Question{}
	}
	c.JSON(http.StatusOK, questions)
}

func (s *Server) postQuestion(c *gin.Context) {
	var input api.PostQuestionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	question, err := s.svc.PostQuestion(c.Request.Context(), currentSession(c).AccountId, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

func (s *Server) getQuestion(c *gin.Context) {
	detail, err := s.svc.GetQuestion(c.Request.Context(), currentSession(c).AccountId, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) deleteQuestion(c *gin.Context) {
	result, err := s.svc.DeleteQuestion(c.Request.Context(), currentSession(c).AccountId, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) likeQuestion(c *gin.Context) {
	result, err := s.svc.LikeQuestion(c.Request.Context(), currentSession(c).AccountId, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) unlikeQuestion(c *gin.Context) {
	result, err := s.svc.UnlikeQuestion(c.Request.Context(), currentSession(c).AccountId, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) postAnswer(c *gin.Context) {
	var input answerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	answer, err := s.svc.PostAnswer(c.Request.Context(), currentSession(c).AccountId, c.Param("id"), input.Body, input.AudioRef)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, answer)
}

func (s *Server) deleteAnswer(c *gin.Context) {
	result, err := s.svc.DeleteAnswer(c.Request.Context(), currentSession(c).AccountId, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) follow(c *gin.Context) {
	result, err := s.svc.FollowAccount(c.Request.Context(), currentSession(c).AccountId, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) unfollow(c *gin.Context) {
	result, err := s.svc.UnfollowAccount(c.Request.Context(), currentSession(c).AccountId, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listMessages(c *gin.Context) {
	limit, offset := pagination(c)
	messages, err := s.svc.ListMessages(c.Request.Context(), currentSession(c).AccountId, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

func (s *Server) sendMessage(c *gin.Context) {
	var input messageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	message, err := s.svc.SendMessage(c.Request.Context(), currentSession(c).AccountId, input.RecipientId, input.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (s *Server) markMessageRead(c *gin.Context) {
	if err := s.svc.MarkMessageRead(c.Request.Context(), currentSession(c).AccountId, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markMessageForPurge(c *gin.Context) {
	if err := s.svc.MarkMessageForPurge(c.Request.Context(), currentSession(c).AccountId, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listNotifications(c *gin.Context) {
	limit, offset := pagination(c)
	notifications, err := s.svc.ListNotifications(c.Request.Context(), currentSession(c).AccountId, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	c.JSON(http.StatusOK, notifications)
}

func (s *Server) markNotificationsRead(c *gin.Context) {
	var input markNotificationsInput
	// An empty body marks everything read
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
	}
	marked, err := s.svc.MarkNotificationsRead(c.Request.Context(), currentSession(c).AccountId, input.QuestionId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}
