package callback_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"card-payments/internal/callback"
	"card-payments/internal/config"
	"card-payments/internal/db"
	"card-payments/internal/message"
	"card-payments/internal/testhelpers"
	"github.com/google/uuid"
	"github.com/h2non/gock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const webhookURL = "http://merchant.test/webhook"

type ProcessorTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	repo        *db.CallbackRepository
	sut         *callback.Processor
	ctx         context.Context
}

func (s *ProcessorTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	if err := db.RunMigrations(pgContainer.ConnectionString, "../../migrations"); err != nil {
		log.Fatal(err)
	}

	pool, err := db.GetPool(pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.repo = db.NewCallbackRepository(pool)
	s.sut = callback.NewCallbackProcessor(s.repo,
		callback.NewSender(config.CallbackSender{TimeoutMs: 1000}, slog.Default()),
		config.CallbackProcessor{Parallelism: 2, RescheduleDelayMs: 60_000, MaxDeliveryAttempts: 2},
		slog.Default())
}

func (s *ProcessorTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *ProcessorTestSuite) SetupTest() {
	if _, err := s.pool.Exec(s.ctx, "DELETE FROM callback_message"); err != nil {
		log.Fatalf("error truncating callback_message table: %s", err)
	}
}

func (s *ProcessorTestSuite) TearDownTest() {
	gock.Off()
}

func (s *ProcessorTestSuite) createCallback() message.Callback {
	now := time.Now()
	entity, err := s.repo.Create(s.ctx, &db.CallbackMessageEntity{
		ID:            uuid.New(),
		TransactionID: "trx-1",
		MerchantID:    "m1",
		Url:           webhookURL,
		Payload:       `{"ticketNumber":"T-1"}`,
		CreatedAt:     now,
		UpdatedAt:     now,
		ScheduledAt:   &now,
		PublishedAt:   &now,
	})
	require.NoError(s.T(), err)

	return message.Callback{
		ID:            entity.ID,
		TransactionID: entity.TransactionID,
		MerchantID:    entity.MerchantID,
		Url:           entity.Url,
		Payload:       entity.Payload,
	}
}

func (s *ProcessorTestSuite) waitFor(id uuid.UUID, done func(*db.CallbackMessageEntity) bool) *db.CallbackMessageEntity {
	var entity *db.CallbackMessageEntity
	require.Eventually(s.T(), func() bool {
		var err error
		entity, err = s.repo.SelectByID(s.ctx, id)
		return err == nil && done(entity)
	}, 5*time.Second, 50*time.Millisecond)
	return entity
}

func (s *ProcessorTestSuite) TestProcess_Delivered() {
	t := s.T()
	gock.New("http://merchant.test").Post("/webhook").JSON(map[string]string{"ticketNumber": "T-1"}).Reply(200)

	msg := s.createCallback()
	assert.NoError(t, s.sut.Process(s.ctx, msg))

	entity := s.waitFor(msg.ID, func(e *db.CallbackMessageEntity) bool { return e.DeliveredAt != nil })
	assert.Equal(t, 1, entity.DeliveryAttempts)
	assert.True(t, gock.IsDone())
}

func (s *ProcessorTestSuite) TestProcess_FailedDeliveryIsRescheduled() {
	t := s.T()
	gock.New("http://merchant.test").Post("/webhook").Reply(500)

	msg := s.createCallback()
	assert.NoError(t, s.sut.Process(s.ctx, msg))

	entity := s.waitFor(msg.ID, func(e *db.CallbackMessageEntity) bool { return e.DeliveryAttempts == 1 })
	assert.Nil(t, entity.DeliveredAt)
	require.NotNil(t, entity.ScheduledAt)
	assert.WithinDuration(t, time.Now().Add(time.Minute), *entity.ScheduledAt, 5*time.Second)
	require.NotNil(t, entity.Error)
	assert.Contains(t, *entity.Error, "500")
}

func (s *ProcessorTestSuite) TestProcess_MaxAttemptsStopsScheduling() {
	t := s.T()
	gock.New("http://merchant.test").Post("/webhook").Times(2).Reply(500)

	msg := s.createCallback()
	assert.NoError(t, s.sut.Process(s.ctx, msg))
	s.waitFor(msg.ID, func(e *db.CallbackMessageEntity) bool { return e.DeliveryAttempts == 1 })

	assert.NoError(t, s.sut.Process(s.ctx, msg))
	entity := s.waitFor(msg.ID, func(e *db.CallbackMessageEntity) bool { return e.DeliveryAttempts == 2 })

	assert.Nil(t, entity.DeliveredAt)
	assert.Nil(t, entity.ScheduledAt)
}

func (s *ProcessorTestSuite) TestProcess_AlreadyDeliveredIsSkipped() {
	t := s.T()
	gock.New("http://merchant.test").Post("/webhook").Reply(200)

	msg := s.createCallback()
	assert.NoError(t, s.sut.Process(s.ctx, msg))
	s.waitFor(msg.ID, func(e *db.CallbackMessageEntity) bool { return e.DeliveredAt != nil })

	assert.NoError(t, s.sut.Process(s.ctx, msg))
	time.Sleep(200 * time.Millisecond)

	entity, err := s.repo.SelectByID(s.ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, entity.DeliveryAttempts)
}

func TestProcessorTestSuite(t *testing.T) {
	suite.Run(t, new(ProcessorTestSuite))
}
