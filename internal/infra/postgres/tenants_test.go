package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/whatsapp-console/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var businessNumberCols = []string{"id", "phone_number", "display_name", "is_default", "company_id", "user_id", "status", "created_at"}

var quickReplyCols = []string{"id", "company_id", "user_id", "shortcut", "message", "message_type", "media_url", "caption", "created_at"}

func TestCreateBusinessNumber(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO business_numbers").
		WithArgs("+18005550000", "Sales", true, "co-1", "u-1", "pending").
		WillReturnRows(pgxmock.NewRows(businessNumberCols).
			AddRow("bn-1", "+18005550000", "Sales", true, "co-1", "u-1", "pending", now))

	bn, err := store.CreateBusinessNumber(context.Background(), &domain.BusinessNumber{
		PhoneNumber: "+18005550000", DisplayName: "Sales", IsDefault: true, CompanyID: "co-1", UserID: "u-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "bn-1", bn.ID)
	assert.Equal(t, domain.NumberPending, bn.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBusinessNumber_PhoneTaken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO business_numbers").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "business_numbers_phone_number_key"})

	_, err := store.CreateBusinessNumber(context.Background(), &domain.BusinessNumber{PhoneNumber: "+18005550000"})
	var dup *domain.ErrDuplicate
	require.True(t, errors.As(err, &dup), "expected ErrDuplicate, got %v", err)
	assert.Equal(t, "+18005550000", dup.Key)
}

func TestListBusinessNumbers(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM business_numbers").
		WithArgs("", "pending").
		WillReturnRows(pgxmock.NewRows(businessNumberCols).
			AddRow("bn-2", "+18005550001", "B", false, "co-2", "", "pending", now).
			AddRow("bn-1", "+18005550000", "A", false, "co-1", "", "pending", now.Add(-time.Hour)))

	numbers, err := store.ListBusinessNumbers(context.Background(), domain.BusinessNumberFilter{Status: domain.NumberPending})
	require.NoError(t, err)
	require.Len(t, numbers, 2)
	assert.Equal(t, "bn-2", numbers[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBusinessNumber(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM business_numbers").
		WithArgs("bn-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.DeleteBusinessNumber(context.Background(), "bn-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUserProfiles_AndSetStatus(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM user_profiles").
		WithArgs("co-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "display_name", "role", "status", "company_id", "created_at"}).
			AddRow("u-1", "a@acme.test", "Ana", "admin", "active", "co-1", now))
	mock.ExpectExec("UPDATE user_profiles SET status").
		WithArgs("u-1", "inactive").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	users, err := store.ListUserProfiles(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ana", users[0].DisplayName)

	require.NoError(t, store.SetUserStatus(context.Background(), "u-1", "inactive"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuickReplies(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO quick_replies").
		WithArgs("co-1", "u-1", "menu", "", "image", "https://cdn.test/menu.png", "Today").
		WillReturnRows(pgxmock.NewRows(quickReplyCols).
			AddRow("qr-1", "co-1", "u-1", "menu", "", "image", "https://cdn.test/menu.png", "Today", now))
	mock.ExpectQuery("FROM quick_replies").
		WithArgs("co-1").
		WillReturnRows(pgxmock.NewRows(quickReplyCols).
			AddRow("qr-1", "co-1", "u-1", "menu", "", "image", "https://cdn.test/menu.png", "Today", now))
	mock.ExpectExec("UPDATE quick_replies").
		WithArgs("qr-1", "", "Tomorrow").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM quick_replies").
		WithArgs("qr-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	created, err := store.CreateQuickReply(ctx, &domain.QuickReply{
		CompanyID: "co-1", UserID: "u-1", Shortcut: "menu", MessageType: domain.TypeImage,
		MediaURL: "https://cdn.test/menu.png", Caption: "Today",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeImage, created.MessageType)

	replies, err := store.ListQuickReplies(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "menu", replies[0].Shortcut)

	require.NoError(t, store.UpdateQuickReply(ctx, &domain.QuickReply{ID: "qr-1", Caption: "Tomorrow"}))
	require.NoError(t, store.DeleteQuickReply(ctx, "qr-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetQuickReply_Missing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM quick_replies").
		WithArgs("qr-missing").
		WillReturnRows(pgxmock.NewRows(quickReplyCols))

	q, err := store.GetQuickReply(context.Background(), "qr-missing")
	require.NoError(t, err)
	assert.Nil(t, q)
}
