package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
	pginfra "trivia-session-service/internal/infra/postgres"
	pgmigrations "trivia-session-service/internal/infra/postgres/migrations"
	infraredis "trivia-session-service/internal/infra/redis"
)

const operatorToken = "integration-token"

type nopBroadcaster struct{}

func (nopBroadcaster) ToSession(string, string, any)     {}
func (nopBroadcaster) ToOperator(string, string, any)    {}
func (nopBroadcaster) ToParticipant(string, string, any) {}

func TestGameSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	store := pginfra.NewStore(pool)
	service := app.NewGameService(app.ServiceConfig{
		Registry:      app.NewRegistry(),
		Questions:     infraredis.NewQuestionCache(redisClient, pginfra.NewQuizLoader(pool), 5*time.Minute),
		Store:         store,
		Broadcast:     nopBroadcaster{},
		Codes:         infraredis.NewCodeStore(redisClient, time.Hour),
		OperatorToken: operatorToken,
		Defaults:      domain.GameSettings{SpeedBonuses: []int{200, 100}, DefaultSpeedBonus: 50},
	})

	header, err := service.CreateSession(ctx, "quiz-1", operatorToken)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	alice, err := service.Join(ctx, header.JoinCode, "Alice", "", "conn-a")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := service.Join(ctx, header.JoinCode, "Bob", "", "conn-b")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if err := service.Start(ctx, header.ID, operatorToken, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.SubmitAnswer(ctx, header.ID, alice.ParticipantID, "q1", 1, ""); err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if err := service.SubmitAnswer(ctx, header.ID, bob.ParticipantID, "q1", 0, ""); err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if err := service.Advance(ctx, header.ID, operatorToken); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// The session reached its terminal state and the row reflects it.
	persisted, err := store.SessionByID(ctx, header.ID)
	if err != nil {
		t.Fatalf("session by id: %v", err)
	}
	if persisted.Phase != domain.PhaseEnded {
		t.Fatalf("persisted phase = %s, want %s", persisted.Phase, domain.PhaseEnded)
	}

	// Alice answered first and correctly: base 500 plus the top speed bonus.
	total, err := store.TotalScore(ctx, header.ID, alice.ParticipantID)
	if err != nil {
		t.Fatalf("alice score: %v", err)
	}
	if total != 700 {
		t.Fatalf("alice total = %d, want 700", total)
	}
	total, err = store.TotalScore(ctx, header.ID, bob.ParticipantID)
	if err != nil {
		t.Fatalf("bob score: %v", err)
	}
	if total != 0 {
		t.Fatalf("bob total = %d, want 0", total)
	}

	var answerCount int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM answers WHERE session_id=$1`, header.ID).Scan(&answerCount); err != nil {
		t.Fatalf("count answers: %v", err)
	}
	if answerCount != 2 {
		t.Fatalf("answer rows = %d, want 2", answerCount)
	}

	// The join code was released in redis when the game ended.
	exists, err := redisClient.Exists(ctx, "session:code:"+header.JoinCode).Result()
	if err != nil {
		t.Fatalf("redis exists: %v", err)
	}
	if exists != 0 {
		t.Fatalf("join code still reserved after game end")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Integration",
		Questions: []domain.Question{
			{
				ID:           "q1",
				Prompt:       "What is 2 + 2?",
				Kind:         domain.KindMultipleChoice,
				Options:      []string{"3", "4", "5", "22"},
				CorrectIndex: 1,
				BaseScore:    500,
				TimeSec:      60,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
