package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/models"
)

// SyncServiceMock stands in for the dialog, message and updates services.
type SyncServiceMock struct {
	mock.Mock
}

func (m *SyncServiceMock) ListDialogs(ctx context.Context, userID int64, spaceID *int64) ([]models.DialogView, error) {
	args := m.Called(ctx, userID, spaceID)
	var list []models.DialogView
	if val := args.Get(0); val != nil {
		list = val.([]models.DialogView)
	}
	return list, args.Error(1)
}

func (m *SyncServiceMock) ReadMessages(ctx context.Context, userID int64, peer models.Peer, maxID *int64, originSession string) (models.ReadOutcome, error) {
	args := m.Called(ctx, userID, peer, maxID, originSession)
	var outcome models.ReadOutcome
	if val := args.Get(0); val != nil {
		outcome = val.(models.ReadOutcome)
	}
	return outcome, args.Error(1)
}

func (m *SyncServiceMock) UpdateDialog(ctx context.Context, userID int64, peer models.Peer, patch models.DialogPatch, originSession string) (models.Dialog, error) {
	args := m.Called(ctx, userID, peer, patch, originSession)
	var dialog models.Dialog
	if val := args.Get(0); val != nil {
		dialog = val.(models.Dialog)
	}
	return dialog, args.Error(1)
}

func (m *SyncServiceMock) MarkAsUnread(ctx context.Context, userID int64, peer models.Peer, originSession string) (bool, error) {
	args := m.Called(ctx, userID, peer, originSession)
	return args.Bool(0), args.Error(1)
}

func (m *SyncServiceMock) SendMessage(ctx context.Context, userID int64, peer models.Peer, content string) (models.Message, error) {
	args := m.Called(ctx, userID, peer, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *SyncServiceMock) DeleteMessages(ctx context.Context, userID int64, peer models.Peer, messageIDs []int64, originSession string) (models.DeleteResult, error) {
	args := m.Called(ctx, userID, peer, messageIDs, originSession)
	var result models.DeleteResult
	if val := args.Get(0); val != nil {
		result = val.(models.DeleteResult)
	}
	return result, args.Error(1)
}

func (m *SyncServiceMock) GetChatHistory(ctx context.Context, userID int64, peer models.Peer, offsetID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userID, peer, offsetID, limit)
	var messages []models.Message
	if val := args.Get(0); val != nil {
		messages = val.([]models.Message)
	}
	return messages, args.Error(1)
}

func (m *SyncServiceMock) SendComposeAction(ctx context.Context, userID int64, peer models.Peer, action models.ComposeActionType) error {
	args := m.Called(ctx, userID, peer, action)
	return args.Error(0)
}

func (m *SyncServiceMock) GetUpdates(ctx context.Context, userID, afterSeq int64, limit int) (models.UpdatesPage, error) {
	args := m.Called(ctx, userID, afterSeq, limit)
	var page models.UpdatesPage
	if val := args.Get(0); val != nil {
		page = val.(models.UpdatesPage)
	}
	return page, args.Error(1)
}

func (m *SyncServiceMock) GetUpdatesState(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
