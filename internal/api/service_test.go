package api

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qna-coin-ledger-go/internal/coordinator"
	"qna-coin-ledger-go/internal/database"
	"qna-coin-ledger-go/internal/listener"
	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/ratelimit"
	"qna-coin-ledger-go/internal/realtime"
	"qna-coin-ledger-go/internal/rules"
	"qna-coin-ledger-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db      *database.Service
	hub     *realtime.Hub
	service *LedgerService
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	hub := realtime.NewHub(64)
	changes := listener.NewChangeListener(listener.ChangeListenerConfig{
		DbService:       db,
		Hub:             hub,
		LookbackWindow:  time.Minute,
		PollingInterval: 20 * time.Millisecond,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, changes.Start(ctx))
	t.Cleanup(changes.Stop)

	service, err := NewLedgerService(Config{
		Store:         db,
		Hub:           hub,
		LoginLimiter:  ratelimit.NewFixedWindow("login", 2, time.Minute),
		SignupLimiter: ratelimit.NewFixedWindow("signup", 3, time.Hour),
		InitialCoins:  20,
		StoreTimeout:  5 * time.Second,
		Wake:          changes.Wake,
	})
	require.NoError(t, err)

	return &testEnv{db: db, hub: hub, service: service}
}

func (e *testEnv) account(t *testing.T, id string, coins int64, admin bool) {
	t.Helper()
	_, err := e.db.CreateAccount(context.Background(), store.CreateAccountParams{
		Id:           id,
		Name:         id,
		Email:        id + "@example.com",
		IsAdmin:      admin,
		InitialCoins: coins,
	})
	require.NoError(t, err)
}

func (e *testEnv) question(t *testing.T, authorId string) *models.Question {
	t.Helper()
	q, err := e.db.CreateQuestion(context.Background(), store.CreateQuestionParams{
		AuthorId:   authorId,
		Title:      "Which sourdough starter should I use?",
		Visibility: models.VisibilityPublic,
	})
	require.NoError(t, err)
	return q
}

func (e *testEnv) balance(t *testing.T, id string) int64 {
	t.Helper()
	b, err := e.db.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestLikeQuestion_CreditsAuthor(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 10, false)
	env.account(t, "y", 0, false)
	q := env.question(t, "y")

	res, err := env.service.LikeQuestion(ctx, "x", q.Id)
	require.NoError(t, err)
	assert.False(t, res.Noop)
	assert.True(t, res.Liked)
	assert.Equal(t, 1, res.LikeCount)
	assert.Equal(t, int64(10), env.balance(t, "y"))
	assert.Equal(t, int64(10), env.balance(t, "x"))

	liked, err := env.db.HasLike(ctx, "x", q.Id)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.True(t, env.service.View("x").Liked(q.Id))

	again, err := env.service.LikeQuestion(ctx, "x", q.Id)
	require.NoError(t, err)
	assert.True(t, again.Noop)
	assert.Equal(t, int64(10), env.balance(t, "y"))

	_, err = env.service.UnlikeQuestion(ctx, "x", q.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), env.balance(t, "y"))
	assert.False(t, env.service.View("x").Liked(q.Id))
}

func TestLikeQuestion_SelfForbidden(t *testing.T) {
	env := setupTestService(t)
	env.account(t, "y", 0, false)
	q := env.question(t, "y")

	_, err := env.service.LikeQuestion(context.Background(), "y", q.Id)
	assert.ErrorIs(t, err, store.ErrSelfActionForbidden)
	assert.Equal(t, int64(0), env.balance(t, "y"))
}

func TestLikeQuestion_AnonymousCreditsNobody(t *testing.T) {
	env := setupTestService(t)
	env.account(t, "x", 5, false)
	q := env.question(t, "")

	res, err := env.service.LikeQuestion(context.Background(), "x", q.Id)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, int64(5), env.balance(t, "x"))
}

func TestDeleteAnswer_InsufficientFunds(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 3, false)
	env.account(t, "y", 0, false)
	q := env.question(t, "y")
	answer, err := env.db.CreateAnswer(ctx, store.CreateAnswerParams{QuestionId: q.Id, AuthorId: "x", Body: "Rye"})
	require.NoError(t, err)

	_, err = env.service.DeleteAnswer(ctx, "x", answer.Id)

	var funds *store.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, int64(9), funds.Required)
	assert.Equal(t, int64(3), funds.Current)
	assert.Equal(t, "You need 9 coins for this, but you have 3.", UserMessage(err))

	_, err = env.db.GetAnswer(ctx, answer.Id)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), env.balance(t, "x"))
	balance, _ := env.service.View("x").Balance("x")
	assert.Equal(t, int64(3), balance)
}

func TestDeleteAnswer_ChargesAuthor(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 12, false)
	env.account(t, "y", 0, false)
	q := env.question(t, "y")
	answer, err := env.db.CreateAnswer(ctx, store.CreateAnswerParams{QuestionId: q.Id, AuthorId: "x", Body: "Rye"})
	require.NoError(t, err)

	_, err = env.service.DeleteAnswer(ctx, "y", answer.Id)
	assert.ErrorIs(t, err, store.ErrPermissionDenied)

	res, err := env.service.DeleteAnswer(ctx, "x", answer.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Balance)
	assert.Equal(t, int64(3), env.balance(t, "x"))

	_, err = env.db.GetAnswer(ctx, answer.Id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteQuestion_AdminIsFree(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "admin", 0, true)
	env.account(t, "y", 0, false)
	q := env.question(t, "y")
	anon := env.question(t, "")

	_, err := env.service.DeleteQuestion(ctx, "admin", q.Id)
	require.NoError(t, err)
	_, err = env.service.DeleteQuestion(ctx, "admin", anon.Id)
	require.NoError(t, err)

	assert.Equal(t, int64(0), env.balance(t, "admin"))
	_, err = env.db.GetQuestion(ctx, q.Id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteQuestion_AnonymousNotDeletableByUsers(t *testing.T) {
	env := setupTestService(t)
	env.account(t, "x", 50, false)
	anon := env.question(t, "")

	_, err := env.service.DeleteQuestion(context.Background(), "x", anon.Id)
	assert.ErrorIs(t, err, store.ErrPermissionDenied)
	assert.Equal(t, int64(50), env.balance(t, "x"))
}

func TestFollowAccount_ConcurrentCallsCreateOneFollow(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 0, false)
	env.account(t, "y", 0, false)

	var wg sync.WaitGroup
	results := make([]models.ActionResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.service.FollowAccount(ctx, "x", "y")
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, results[0].Noop != results[1].Noop, "exactly one call is a no-op")

	following, err := env.db.IsFollowing(ctx, "x", "y")
	require.NoError(t, err)
	assert.True(t, following)

	notifications, err := env.db.ListNotifications(ctx, "y", 10, 0)
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestEvictIdleCoordinators(t *testing.T) {
	env := setupTestService(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env.service.now = func() time.Time { return now }

	idle := env.service.coordinatorFor("x")
	busy := env.service.coordinatorFor("y")
	now = now.Add(env.service.coordinatorIdle)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := busy.Execute(context.Background(), coordinator.Request{
			Action:  rules.ActionFollow,
			ActorId: "y",
			Key:     "slow",
			Decide: func(ctx context.Context) (rules.Decision, error) {
				return rules.Decision{Action: rules.ActionFollow, Allowed: true}, nil
			},
			Remote: func(ctx context.Context, d rules.Decision) error {
				<-release
				return nil
			},
		})
		done <- err
	}()
	require.Eventually(t, func() bool { return busy.Pending("slow") }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, env.service.EvictIdleCoordinators())
	assert.NotSame(t, idle, env.service.coordinatorFor("x"))

	close(release)
	require.NoError(t, <-done)
	now = now.Add(env.service.coordinatorIdle)
	assert.Equal(t, 2, env.service.EvictIdleCoordinators())
	assert.Empty(t, env.service.coordinators)
}

func TestFollowAccount_SelfForbidden(t *testing.T) {
	env := setupTestService(t)
	env.account(t, "x", 0, false)

	_, err := env.service.FollowAccount(context.Background(), "x", "x")
	assert.ErrorIs(t, err, store.ErrSelfActionForbidden)
}

func TestUnfollowAccount(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 0, false)
	env.account(t, "y", 0, false)

	res, err := env.service.UnfollowAccount(ctx, "x", "y")
	require.NoError(t, err)
	assert.True(t, res.Noop)

	_, err = env.service.FollowAccount(ctx, "x", "y")
	require.NoError(t, err)
	res, err = env.service.UnfollowAccount(ctx, "x", "y")
	require.NoError(t, err)
	assert.False(t, res.Noop)
	assert.False(t, res.Following)
}

func TestUpdateProfile(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 6, false)
	env.account(t, "taken", 0, false)

	_, err := env.service.UpdateProfile(ctx, "x", UpdateProfileRequest{Name: "TAKEN"})
	assert.ErrorIs(t, err, store.ErrNameTaken)
	assert.Equal(t, int64(6), env.balance(t, "x"))

	profile, err := env.service.UpdateProfile(ctx, "x", UpdateProfileRequest{Name: "Xavier"})
	require.NoError(t, err)
	assert.Equal(t, "Xavier", profile.Name)
	assert.Equal(t, int64(2), profile.Balance)

	_, err = env.service.UpdateProfile(ctx, "x", UpdateProfileRequest{AvatarUrl: "https://example.com/x.png"})
	var funds *store.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, int64(4), funds.Required)
}

func TestSignUpAndLogin(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	signed, err := env.service.SignUp(ctx, SignUpRequest{Name: "Dana", Email: "Dana@Example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Token)
	assert.Equal(t, int64(20), signed.Profile.Balance)

	_, err = env.service.SignUp(ctx, SignUpRequest{Name: "dana", Email: "other@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, store.ErrNameTaken)

	_, err = env.service.Login(ctx, "dana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	logged, err := env.service.Login(ctx, "dana@example.com", "correct horse")
	require.NoError(t, err)

	sess, err := env.service.Authenticate(logged.Token)
	require.NoError(t, err)
	assert.Equal(t, signed.Profile.Id, sess.AccountId)

	env.service.Logout(logged.Token)
	_, err = env.service.Authenticate(logged.Token)
	assert.Error(t, err)
}

func TestLogin_RateLimited(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	_, err := env.service.SignUp(ctx, SignUpRequest{Name: "Eve", Email: "eve@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = env.service.Login(ctx, "eve@example.com", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = env.service.Login(ctx, "eve@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrRateLimited)

	env.service.ResetRateLimit(LimitLogin, "eve@example.com")
	_, err = env.service.Login(ctx, "eve@example.com", "hunter2hunter2")
	assert.NoError(t, err)
}

func TestOnUnreadCountChanged_FollowsInbox(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 0, false)
	env.account(t, "y", 0, false)

	var mu sync.Mutex
	latest := -1
	r, err := env.service.OnUnreadCountChanged(ctx, "y", func(v int) {
		mu.Lock()
		latest = v
		mu.Unlock()
	})
	require.NoError(t, err)
	defer r.Stop()
	value := func() int {
		mu.Lock()
		defer mu.Unlock()
		return latest
	}
	assert.Equal(t, 0, value())

	first, err := env.service.SendMessage(ctx, "x", "y", "hello")
	require.NoError(t, err)
	_, err = env.service.SendMessage(ctx, "x", "y", "are you there?")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return value() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.service.MarkMessageRead(ctx, "y", first.Id))
	assert.Eventually(t, func() bool { return value() == 1 }, 2*time.Second, 10*time.Millisecond)

	err = env.service.MarkMessageRead(ctx, "x", first.Id)
	assert.ErrorIs(t, err, store.ErrPermissionDenied)
}

func TestOnNotificationCountChanged_AnswerNotifiesAuthor(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 0, false)
	env.account(t, "y", 0, false)
	q := env.question(t, "y")

	notified := make(chan int, 8)
	r, err := env.service.OnNotificationCountChanged(ctx, "y", func(v int) { notified <- v })
	require.NoError(t, err)
	defer r.Stop()
	answers, err := env.service.OnAnswerCountChanged(ctx, q.Id, nil)
	require.NoError(t, err)
	defer answers.Stop()
	assert.Equal(t, 0, <-notified)

	_, err = env.service.PostAnswer(ctx, "x", q.Id, "Use rye flour", "")
	require.NoError(t, err)

	select {
	case v := <-notified:
		assert.Equal(t, 1, v)
	case <-time.After(2 * time.Second):
		t.Fatal("notification count did not change")
	}
	assert.Eventually(t, func() bool { return answers.Value() == 1 }, 2*time.Second, 10*time.Millisecond)

	marked, err := env.service.MarkNotificationsRead(ctx, "y", q.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
}

func TestGetQuestion_FollowersOnly(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 0, false)
	env.account(t, "y", 0, false)

	q, err := env.service.PostQuestion(ctx, "y", PostQuestionRequest{
		Title:      "Private thoughts",
		Tags:       []string{" Bread ", "bread"},
		Visibility: models.VisibilityFollowers,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bread"}, q.Tags)

	_, err = env.service.GetQuestion(ctx, "x", q.Id)
	assert.ErrorIs(t, err, store.ErrPermissionDenied)

	_, err = env.service.FollowAccount(ctx, "x", "y")
	require.NoError(t, err)
	detail, err := env.service.GetQuestion(ctx, "x", q.Id)
	require.NoError(t, err)
	assert.Equal(t, q.Id, detail.Question.Id)
}

func TestPostQuestion_Validation(t *testing.T) {
	env := setupTestService(t)
	env.account(t, "x", 0, false)

	tests := []struct {
		name string
		req  PostQuestionRequest
	}{
		{"empty title", PostQuestionRequest{Title: "  "}},
		{"bad visibility", PostQuestionRequest{Title: "t", Visibility: "friends"}},
		{"anonymous followers-only", PostQuestionRequest{Title: "t", Anonymous: true, Visibility: models.VisibilityFollowers}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.PostQuestion(context.Background(), "x", tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestGetTransactionHistory(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.account(t, "x", 10, false)
	env.account(t, "y", 20, false)
	q := env.question(t, "y")

	_, err := env.service.LikeQuestion(ctx, "x", q.Id)
	require.NoError(t, err)

	history, err := env.service.GetTransactionHistory(ctx, "y", 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.KindLikeReward, history[0].Kind)
	assert.Equal(t, int64(30), history[0].BalanceAfter)

	balance, err := env.service.GetUserBalance(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{store.ErrSelfActionForbidden, "You cannot do that to your own account or content."},
		{store.ErrNameTaken, "That name is already taken."},
		{store.ErrNetwork, "The server is not responding. Please try again."},
		{errors.New("disk I/O error"), "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserMessage(tt.err))
	}
}
