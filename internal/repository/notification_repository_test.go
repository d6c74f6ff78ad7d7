package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/reservation-engine/internal/model"
)

func TestNotificationRepo_CreateAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(uint64(9), model.RoleOperator, model.NotificationNewReservation, "New reservation", "RSV-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectQuery("FROM notifications WHERE recipient_id=\\? AND recipient_role=\\?").
		WithArgs(uint64(9), model.RoleOperator, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_id", "recipient_role", "type", "title", "message", "created_at"}).
			AddRow(uint64(12), uint64(9), "OPERATOR", "new_reservation", "New reservation", "RSV-1", time.Now()))

	repo := NewNotificationRepo(db)
	n := &model.Notification{RecipientID: 9, RecipientRole: model.RoleOperator, Type: model.NotificationNewReservation, Title: "New reservation", Message: "RSV-1"}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.Equal(t, uint64(12), n.ID)

	list, err := repo.ListByRecipient(context.Background(), model.Actor{ID: 9, Role: model.RoleOperator}, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "RSV-1", list[0].Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}
