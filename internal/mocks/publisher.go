package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PublisherMock stands in for the broker publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return m.Called(ctx, routingKey, event, headers).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

// Capture accepts every publish on routingKey and forwards the event body to
// the returned channel.
func (m *PublisherMock) Capture(routingKey string, buffer int) <-chan any {
	events := make(chan any, buffer)
	m.On("Publish", mock.Anything, routingKey, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { events <- args.Get(2) }).
		Return(nil)
	return events
}
