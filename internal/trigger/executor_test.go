package trigger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smm_boost/internal/clients"
	"smm_boost/internal/model"
	"smm_boost/internal/screenshot"
	"smm_boost/internal/storage"
)

type mockOrders struct{ mock.Mock }

func (m *mockOrders) CreateOrder(ctx context.Context, o clients.Order) (string, error) {
	args := m.Called(ctx, o)
	return args.String(0), args.Error(1)
}

func (m *mockOrders) OrderStatus(ctx context.Context, orderID string) (clients.OrderStatus, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(clients.OrderStatus), args.Error(1)
}

func (m *mockOrders) Services(ctx context.Context) ([]clients.Service, error) {
	args := m.Called(ctx)
	return args.Get(0).([]clients.Service), args.Error(1)
}

type mockComments struct{ mock.Mock }

func (m *mockComments) GenerateComments(ctx context.Context, req clients.CommentRequest) ([]string, error) {
	args := m.Called(ctx, req)
	comments, _ := args.Get(0).([]string)
	return comments, args.Error(1)
}

type mockCosts struct{ mock.Mock }

func (m *mockCosts) Estimate(ctx context.Context, serviceID int64, quantity int) float64 {
	return m.Called(ctx, serviceID, quantity).Get(0).(float64)
}

type mockCapturer struct{ mock.Mock }

func (m *mockCapturer) Capture(ctx context.Context, url string, platform model.Platform, executionID int64, typ model.ScreenshotType) screenshot.Result {
	return m.Called(ctx, url, platform, executionID, typ).Get(0).(screenshot.Result)
}

type env struct {
	exec     *Executor
	store    *storage.SQLite
	orders   *mockOrders
	comments *mockComments
	costs    *mockCosts
	account  *model.Account
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	acc := &model.Account{
		Platform:  model.PlatformInstagram,
		Username:  "studio.daily",
		URL:       "https://www.instagram.com/studio.daily",
		RSSStatus: model.FeedActive,
	}
	require.NoError(t, store.CreateAccount(context.Background(), acc))

	e := &env{
		store:    store,
		orders:   &mockOrders{},
		comments: &mockComments{},
		costs:    &mockCosts{},
		account:  acc,
	}
	provider := clients.NewProvider(clients.Set{Orders: e.orders, Comments: e.comments})
	e.exec = New(store, provider, e.costs, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.exec.now = func() time.Time { return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC) }
	e.exec.intn = func(n int) int { return n - 1 }
	return e
}

func likesAction(accountID int64) *model.Action {
	return &model.Action{
		ID:          10,
		AccountID:   accountID,
		ServiceID:   100,
		ServiceName: "Instagram Likes",
		Params:      model.ActionParams{Quantity: model.FixedQuantity(50), Comments: model.Comments{Mode: model.CommentsNone}},
		IsActive:    true,
	}
}

var post = model.Post{
	GUID:        "ig-C1aaaa",
	Link:        "https://www.instagram.com/p/C1aaaa/",
	Title:       "Spring drop",
	Description: "<p>New <b>colours</b> are in</p>",
}

func TestExecuteSuccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	action := likesAction(e.account.ID)

	e.orders.On("CreateOrder", mock.Anything, clients.Order{ServiceID: 100, Link: post.Link, Quantity: 50}).Return("9001", nil).Once()
	e.costs.On("Estimate", mock.Anything, int64(100), 50).Return(0.45).Once()

	res := e.exec.Execute(ctx, e.account, action, post, 7)
	require.NoError(t, res.Err)
	require.True(t, res.Success)
	require.Equal(t, "9001", res.OrderID)

	rec, err := e.store.GetExecution(ctx, res.ExecutionID)
	require.NoError(t, err)
	cost := 0.45
	want := model.ExecutionRecord{
		ID:              res.ExecutionID,
		OrderID:         "9001",
		Type:            model.ExecutionRSSTrigger,
		Platform:        model.PlatformInstagram,
		TargetURL:       post.Link,
		ServiceID:       100,
		ServiceName:     "Instagram Likes",
		Quantity:        50,
		Cost:            &cost,
		Status:          model.StatusPending,
		AccountID:       &e.account.ID,
		AccountUsername: "studio.daily",
		Params: model.ExecutionParams{
			ActionID:     10,
			QuantityMode: "fixed",
			FeedID:       7,
			PostGUID:     post.GUID,
			PostURL:      post.Link,
			PostTitle:    post.Title,
		},
	}
	rec.CreatedAt, rec.UpdatedAt = time.Time{}, time.Time{}
	if diff := cmp.Diff(want, *rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	e.orders.AssertExpectations(t)
	e.costs.AssertExpectations(t)
}

func TestExecuteDuplicateWithinWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	action := likesAction(e.account.ID)

	e.orders.On("CreateOrder", mock.Anything, mock.Anything).Return("1", nil).Once()
	e.costs.On("Estimate", mock.Anything, mock.Anything, mock.Anything).Return(0.0)

	first := e.exec.Execute(ctx, e.account, action, post, 7)
	require.True(t, first.Success)

	second := e.exec.Execute(ctx, e.account, action, post, 7)
	require.True(t, second.Skipped)
	require.ErrorIs(t, second.Err, ErrDuplicateExecution)
	e.orders.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestExecuteOrderFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	action := likesAction(e.account.ID)

	e.orders.On("CreateOrder", mock.Anything, mock.Anything).Return("", errors.New("not enough funds")).Once()

	res := e.exec.Execute(ctx, e.account, action, post, 7)
	require.False(t, res.Success)
	require.False(t, res.Skipped)
	require.Error(t, res.Err)

	rec, err := e.store.GetExecution(ctx, res.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, rec.Status)
	require.Equal(t, "FAILED_1772712000", rec.OrderID)
	require.False(t, rec.Refreshable())

	// A failed execution does not block a retry of the same post.
	e.orders.On("CreateOrder", mock.Anything, mock.Anything).Return("2", nil).Once()
	e.costs.On("Estimate", mock.Anything, mock.Anything, mock.Anything).Return(0.0)
	retry := e.exec.Execute(ctx, e.account, action, post, 7)
	require.True(t, retry.Success)
}

func TestExecuteLLMComments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	action := likesAction(e.account.ID)
	action.ServiceName = "Instagram Custom Comments"
	action.Params = model.ActionParams{
		Quantity: model.RangeQuantity(3, 5),
		Comments: model.Comments{Mode: model.CommentsLLM, Directives: "friendly", UseEmojis: true},
	}

	e.comments.On("GenerateComments", mock.Anything, clients.CommentRequest{
		Content:    "Spring drop\n\nNew colours are in",
		Count:      5,
		Directives: "friendly",
		UseEmojis:  true,
	}).Return([]string{"love it", "great colours"}, nil).Once()
	e.orders.On("CreateOrder", mock.Anything, clients.Order{
		ServiceID: 100,
		Link:      post.Link,
		Quantity:  2,
		Comments:  []string{"love it", "great colours"},
	}).Return("77", nil).Once()
	e.costs.On("Estimate", mock.Anything, int64(100), 2).Return(0.02)

	res := e.exec.Execute(ctx, e.account, action, post, 7)
	require.True(t, res.Success, "result: %+v", res)

	rec, err := e.store.GetExecution(ctx, res.ExecutionID)
	require.NoError(t, err)
	require.True(t, rec.Params.LLMGenerated)
	require.Equal(t, "friendly", rec.Params.LLMDirectives)
	require.Equal(t, 2, rec.Params.CommentCount)
	require.Equal(t, "range", rec.Params.QuantityMode)
	e.comments.AssertExpectations(t)
	e.orders.AssertExpectations(t)
}

func TestExecuteLLMFailureSkipsWithoutRecord(t *testing.T) {
	tests := []struct {
		name     string
		comments []string
		err      error
	}{
		{"generator error", nil, errors.New("flow timed out")},
		{"no comments", []string{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			action := likesAction(e.account.ID)
			action.ServiceName = "Instagram Comments"
			action.Params.Comments = model.Comments{Mode: model.CommentsLLM, Directives: "short"}

			e.comments.On("GenerateComments", mock.Anything, mock.Anything).Return(tt.comments, tt.err).Once()

			res := e.exec.Execute(ctx, e.account, action, post, 7)
			require.True(t, res.Skipped)
			require.ErrorIs(t, res.Err, ErrCommentGeneration)
			e.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)

			recs, err := e.store.ListExecutions(ctx, model.ExecutionFilter{})
			require.NoError(t, err)
			require.Empty(t, recs)
		})
	}
}

func TestExecuteLLMIgnoredForNonCommentService(t *testing.T) {
	e := newEnv(t)
	action := likesAction(e.account.ID)
	action.Params.Comments = model.Comments{Mode: model.CommentsLLM, Directives: "short"}

	e.orders.On("CreateOrder", mock.Anything, clients.Order{ServiceID: 100, Link: post.Link, Quantity: 50}).Return("5", nil).Once()
	e.costs.On("Estimate", mock.Anything, mock.Anything, mock.Anything).Return(0.0)

	res := e.exec.Execute(context.Background(), e.account, action, post, 7)
	require.True(t, res.Success)
	e.comments.AssertNotCalled(t, "GenerateComments", mock.Anything, mock.Anything)
}

func TestExecuteLiteralCommentsKeepQuantity(t *testing.T) {
	e := newEnv(t)
	action := likesAction(e.account.ID)
	action.ServiceName = "Instagram Custom Comments"
	action.Params.Comments = model.Comments{Mode: model.CommentsLiteral, Literal: []string{"nice", "wow", "so good"}}

	e.orders.On("CreateOrder", mock.Anything, clients.Order{
		ServiceID: 100,
		Link:      post.Link,
		Quantity:  50,
		Comments:  []string{"nice", "wow", "so good"},
	}).Return("6", nil).Once()
	e.costs.On("Estimate", mock.Anything, int64(100), 50).Return(0.0)

	res := e.exec.Execute(context.Background(), e.account, action, post, 7)
	require.True(t, res.Success)
	e.orders.AssertExpectations(t)

	rec, err := e.store.GetExecution(context.Background(), res.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, 50, rec.Quantity)
	require.Equal(t, 3, rec.Params.CommentCount)
}

func TestExecuteBeforeScreenshot(t *testing.T) {
	e := newEnv(t)
	shots := &mockCapturer{}
	e.exec.shots = shots
	action := likesAction(e.account.ID)

	shots.On("Capture", mock.Anything, post.Link, model.PlatformInstagram, mock.AnythingOfType("int64"), model.ShotBefore).
		Return(screenshot.Result{Err: errors.New("browser down")}).Once()
	e.orders.On("CreateOrder", mock.Anything, mock.Anything).Return("8", nil).Once()
	e.costs.On("Estimate", mock.Anything, mock.Anything, mock.Anything).Return(0.0)

	res := e.exec.Execute(context.Background(), e.account, action, post, 7)
	require.True(t, res.Success, "a failed screenshot must not block the order")
	shots.AssertExpectations(t)
}

func TestExecuteNotConfigured(t *testing.T) {
	e := newEnv(t)
	e.exec.collab = clients.NewProvider(clients.Set{})

	res := e.exec.Execute(context.Background(), e.account, likesAction(e.account.ID), post, 7)
	require.ErrorIs(t, res.Err, clients.ErrNotConfigured)
	require.False(t, res.Success)
}

func TestTargetURL(t *testing.T) {
	acc := &model.Account{Platform: model.PlatformTikTok, Username: "dancer"}
	tests := []struct {
		name    string
		account *model.Account
		post    model.Post
		want    string
	}{
		{"post link", acc, model.Post{Link: "https://www.tiktok.com/@dancer/video/1"}, "https://www.tiktok.com/@dancer/video/1"},
		{"account url", &model.Account{Platform: model.PlatformTikTok, Username: "dancer", URL: "https://tiktok.com/@dancer"}, model.Post{}, "https://tiktok.com/@dancer"},
		{"profile url", acc, model.Post{}, "https://www.tiktok.com/@dancer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, TargetURL(tt.account, tt.post)); diff != "" {
				t.Errorf("TargetURL mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPostContentFallback(t *testing.T) {
	acc := &model.Account{Platform: model.PlatformX, Username: "bird"}
	if got := PostContent(acc, model.Post{}); got != "New post from @bird on x" {
		t.Errorf("PostContent = %q", got)
	}
}
