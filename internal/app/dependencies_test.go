package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-tierprice/internal/app"
	"github.com/noah-isme/toko-tierprice/internal/config"
	"github.com/noah-isme/toko-tierprice/internal/events"
	"github.com/noah-isme/toko-tierprice/internal/quote"
)

type row struct {
	value string
	err   error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case **string:
		v := r.value
		*d = &v
	case *[]byte:
		*d = []byte(r.value)
	default:
		return fmt.Errorf("unexpected scan target %T", dest[0])
	}
	return nil
}

type catalogDB struct{}

func (catalogDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if args[0].(int64) != 12 {
		return row{err: pgx.ErrNoRows}
	}
	if strings.Contains(sql, "FROM products") {
		return row{value: "20.0000"}
	}
	if args[1] != "_pricing_rules" {
		return row{err: pgx.ErrNoRows}
	}
	return row{value: `[{"rules":[{"type":"price_discount","from":"2","to":"4","amount":"2"},{"type":"price_discount","from":"5","to":"","amount":"5"}]}]`}
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (e *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func build(t *testing.T) (*app.Dependencies, *recordingEnqueuer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg, err := config.LoadForTests(map[string]string{
		"DATABASE_URL":         "postgres://localhost/tierprice",
		"REDIS_URL":            "redis://" + mr.Addr(),
		"PRICING_TOKEN_SECRET": "test-secret",
	})
	require.NoError(t, err)

	tasks := &recordingEnqueuer{}
	deps, err := app.Build(cfg, zerolog.Nop(), catalogDB{}, rdb, tasks)
	require.NoError(t, err)
	return deps, tasks, mr
}

func TestBuildServesAjaxQuotes(t *testing.T) {
	deps, _, mr := build(t)
	nonce, err := deps.Signer.Issue(12)
	require.NoError(t, err)

	handler := deps.QuoteHandler("/wp-admin/admin-ajax.php")
	form := url.Values{"action": {"get_dynamic_price"}, "product_id": {"12"}, "quantity": {"5"}, "nonce": {nonce}}
	req := httptest.NewRequest(http.MethodPost, "/wp-admin/admin-ajax.php", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.Ajax(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			DiscountedPrice string `json:"discounted_price"`
			HasDiscount     bool   `json:"has_discount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.True(t, body.Data.HasDiscount)
	require.Equal(t, "€15,00", body.Data.DiscountedPrice)

	require.True(t, mr.Exists(deps.Quotes.Key(12, 5)))
	require.True(t, mr.Exists("tierprice:product:12"))
}

func TestBusInvalidatesAndPublishes(t *testing.T) {
	deps, tasks, mr := build(t)
	ctx := context.Background()

	_, err := deps.Service.Quote(ctx, quoteRequest(t, deps, 3))
	require.NoError(t, err)
	require.True(t, mr.Exists(deps.Quotes.Key(12, 3)))

	ev, err := deps.Bus.Emit(ctx, events.TopicProductSaved, 12)
	require.NoError(t, err)
	require.Equal(t, int64(12), ev.ProductID)

	require.False(t, mr.Exists(deps.Quotes.Key(12, 3)))
	require.False(t, mr.Exists("tierprice:product:12"))
	require.Len(t, tasks.tasks, 1)
	require.Equal(t, events.TypeProductChanged, tasks.tasks[0].Type())
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := app.Build(nil, zerolog.Nop(), catalogDB{}, nil, nil)
	require.Error(t, err)
}

func TestRedisConnOpt(t *testing.T) {
	opt, err := app.RedisConnOpt("redis://localhost:6379/2")
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	require.Equal(t, "localhost:6379", client.Addr)
	require.Equal(t, 2, client.DB)

	_, err = app.RedisConnOpt("://bad")
	require.Error(t, err)
}

func quoteRequest(t *testing.T, deps *app.Dependencies, qty int) quote.Request {
	t.Helper()
	nonce, err := deps.Signer.Issue(12)
	require.NoError(t, err)
	return quote.Request{ProductID: 12, Quantity: qty, Token: nonce}
}
