package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Deliver(ctx context.Context, n *Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func TestNotify_FillsIDAndKeepsRecent(t *testing.T) {
	svc := NewService(nil, zap.NewNop(), 2)

	svc.Notify(context.Background(), Notification{Level: LevelSuccess, Operation: "deploy", Message: "one"})
	svc.Notify(context.Background(), Notification{Level: LevelInfo, Operation: "reject", Message: "two"})
	svc.Notify(context.Background(), Notification{Level: LevelError, Operation: "buy", Message: "three"})

	recent := svc.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Message)
	assert.Equal(t, "two", recent[1].Message)
	assert.NotEqual(t, uuid.Nil, recent[0].ID)
	assert.False(t, recent[0].CreatedAt.IsZero())

	assert.Len(t, svc.Recent(1), 1)
}

func TestNotify_SinkErrorsAreSwallowed(t *testing.T) {
	sink := new(MockSink)
	sink.On("Deliver", mock.Anything, mock.MatchedBy(func(n *Notification) bool {
		return n.Operation == "approve"
	})).Return(errors.New("down"))

	svc := NewService(nil, zap.NewNop(), 10, sink)
	svc.Notify(context.Background(), Notification{Level: LevelWarning, Operation: "approve", Message: "unconfirmed"})

	sink.AssertExpectations(t)
	assert.Len(t, svc.Recent(0), 1)
}

func TestStateChanged_NoManager(t *testing.T) {
	svc := NewService(nil, zap.NewNop(), 10)
	assert.NotPanics(t, func() { svc.StateChanged(context.Background(), map[string]int{"x": 1}) })
}

func TestSNSSink_PublishesWarningsOnly(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return *in.TopicArn == "arn:aws:sns:us-east-1:1:aarna" && *in.Subject == "aarna error: buy"
	})).Return(&sns.PublishOutput{}, nil).Once()

	sink := NewSNSSink(pub, "arn:aws:sns:us-east-1:1:aarna")

	require.NoError(t, sink.Deliver(context.Background(), &Notification{Level: LevelSuccess, Operation: "deploy"}))
	require.NoError(t, sink.Deliver(context.Background(), &Notification{Level: LevelError, Operation: "buy", Message: "listing not active"}))

	pub.AssertExpectations(t)
}

func TestSNSSink_Error(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := NewSNSSink(pub, "arn").Deliver(context.Background(), &Notification{Level: LevelWarning, Operation: "x"})
	assert.ErrorContains(t, err, "throttled")
}

func TestToRecord(t *testing.T) {
	n := &Notification{ID: uuid.New(), Level: LevelInfo, Operation: "reject", Metadata: map[string]interface{}{"project_id": 3}}
	rec, err := toRecord(n)
	require.NoError(t, err)
	assert.Equal(t, "info", rec.Level)
	assert.JSONEq(t, `{"project_id":3}`, string(rec.Metadata))
}
