package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
)

type fakeRepository struct {
	notifications []models.Notification
	lastList      listNotificationsParams
	nextCursor    *pagination.Cursor
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	f.notifications = append(f.notifications, *notification)
	return nil
}

func (f *fakeRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	f.lastList = params
	var rows []models.Notification
	for _, n := range f.notifications {
		if n.RecipientID != params.RecipientID {
			continue
		}
		if params.UnreadOnly && n.ReadAt != nil {
			continue
		}
		rows = append(rows, n)
	}
	return rows, f.nextCursor, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	for i := range f.notifications {
		n := &f.notifications[i]
		if n.ID != notificationID || n.RecipientID != recipientID {
			continue
		}
		if n.ReadAt != nil {
			return notificationMarkResult{Found: true}, nil
		}
		n.ReadAt = &now
		return notificationMarkResult{Found: true, Updated: true}, nil
	}
	return notificationMarkResult{}, nil
}

func (f *fakeRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	for i := range f.notifications {
		n := &f.notifications[i]
		if n.RecipientID == recipientID && n.ReadAt == nil {
			n.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func seedNotification(repo *fakeRepository, recipientID uuid.UUID, read bool) uuid.UUID {
	notification := models.Notification{
		ID:            uuid.New(),
		RecipientID:   recipientID,
		RecipientRole: "customer",
		Type:          "job_accepted",
		Title:         "Technician assigned",
		Message:       "A technician accepted your service request.",
		CreatedAt:     time.Now().UTC(),
	}
	if read {
		now := time.Now().UTC()
		notification.ReadAt = &now
	}
	repo.notifications = append(repo.notifications, notification)
	return notification.ID
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestListScopesToRecipient(t *testing.T) {
	repo := &fakeRepository{}
	recipientID := uuid.New()
	seedNotification(repo, recipientID, false)
	seedNotification(repo, recipientID, true)
	seedNotification(repo, uuid.New(), false)

	svc, err := NewService(repo)
	require.NoError(t, err)

	result, err := svc.List(context.Background(), ListParams{RecipientID: recipientID})
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.Empty(t, result.Cursor)
}

func TestListUnreadOnly(t *testing.T) {
	repo := &fakeRepository{}
	recipientID := uuid.New()
	seedNotification(repo, recipientID, false)
	seedNotification(repo, recipientID, true)

	svc, err := NewService(repo)
	require.NoError(t, err)

	result, err := svc.List(context.Background(), ListParams{RecipientID: recipientID, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.True(t, repo.lastList.UnreadOnly)
}

func TestListReturnsNextCursor(t *testing.T) {
	repo := &fakeRepository{nextCursor: &pagination.Cursor{CreatedAt: time.Now().UTC(), ID: uuid.New()}}
	recipientID := uuid.New()
	seedNotification(repo, recipientID, false)

	svc, err := NewService(repo)
	require.NoError(t, err)

	result, err := svc.List(context.Background(), ListParams{RecipientID: recipientID})
	require.NoError(t, err)
	require.NotEmpty(t, result.Cursor)

	parsed, err := pagination.ParseCursor(result.Cursor)
	require.NoError(t, err)
	assert.Equal(t, repo.nextCursor.ID, parsed.ID)
}

func TestListRejectsInvalidCursor(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	require.NoError(t, err)

	_, err = svc.List(context.Background(), ListParams{RecipientID: uuid.New(), Cursor: "not-base64!!"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestMarkReadUpdatesOwnNotification(t *testing.T) {
	repo := &fakeRepository{}
	recipientID := uuid.New()
	notificationID := seedNotification(repo, recipientID, false)

	svc, err := NewService(repo)
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(context.Background(), recipientID, notificationID))
	assert.NotNil(t, repo.notifications[0].ReadAt)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	repo := &fakeRepository{}
	recipientID := uuid.New()
	notificationID := seedNotification(repo, recipientID, true)

	svc, err := NewService(repo)
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(context.Background(), recipientID, notificationID))
}

func TestMarkReadRejectsForeignNotification(t *testing.T) {
	repo := &fakeRepository{}
	notificationID := seedNotification(repo, uuid.New(), false)

	svc, err := NewService(repo)
	require.NoError(t, err)

	err = svc.MarkRead(context.Background(), uuid.New(), notificationID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.Nil(t, repo.notifications[0].ReadAt)
}

func TestMarkAllReadCountsUpdates(t *testing.T) {
	repo := &fakeRepository{}
	recipientID := uuid.New()
	seedNotification(repo, recipientID, false)
	seedNotification(repo, recipientID, false)
	seedNotification(repo, recipientID, true)

	svc, err := NewService(repo)
	require.NoError(t, err)

	count, err := svc.MarkAllRead(context.Background(), recipientID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
