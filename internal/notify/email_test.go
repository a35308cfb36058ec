package notify

import (
	"context"
	"testing"

	"ms-checkout/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, topic, key string, v interface{}) error {
	args := m.Called(ctx, topic, key, v)
	return args.Error(0)
}

func TestKafkaDispatcherQueuesEmail(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishJSON", mock.Anything, "boutique.email.outbound", "anna@example.ch", mock.MatchedBy(func(e Email) bool {
		return e.Template == TemplateGiftCard && !e.QueuedAt.IsZero()
	})).Return(nil)

	d := NewKafkaDispatcher(pub, "boutique.email.outbound", logger.NewDiscard())
	err := d.Dispatch(context.Background(), Email{
		To:       "anna@example.ch",
		Template: TemplateGiftCard,
		Data:     GiftCard{Code: "GC-1-000001", Value: "30.00"},
	})

	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestKafkaDispatcherRequiresRecipient(t *testing.T) {
	pub := new(MockPublisher)
	d := NewKafkaDispatcher(pub, "boutique.email.outbound", logger.NewDiscard())

	err := d.Dispatch(context.Background(), Email{Template: TemplateOrderConfirmation})

	assert.Error(t, err)
	pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
