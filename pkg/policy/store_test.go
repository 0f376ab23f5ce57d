package policy

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var policyRowColumns = []string{
	"id", "name", "code", "type", "is_default", "grant_stage", "description",
	"app_id", "client_id", "enabled", "tenant_id", "created_by", "created_at",
	"updated_by", "updated_at",
}

func policyRow(p Policy) *sqlmock.Rows {
	return sqlmock.NewRows(policyRowColumns).AddRow(
		p.ID, p.Name, p.Code, string(p.Type), p.IsDefault, string(p.GrantStage),
		nullString(p.Description), p.AppID, nullString(p.ClientID), p.Enabled,
		p.TenantID, nullString(p.CreatedBy), p.CreatedAt, nullString(p.UpdatedBy), p.UpdatedAt,
	)
}

func classifiedPolicy() Policy {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Policy{
		ID:         "pol-1",
		Name:       "Report Viewer",
		Code:       "report_viewer",
		Type:       TypeTenantCustom,
		GrantStage: GrantStageManual,
		AppID:      "app-1",
		Enabled:    true,
		TenantID:   "tenant-1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func expectNoUniqueCollision(mock sqlmock.Sqlmock, appID, code, name, excludeID string) {
	if code != "" {
		mock.ExpectQuery("SELECT id FROM policies WHERE app_id =").
			WithArgs(appID, code, excludeID).
			WillReturnError(sql.ErrNoRows)
	}
	mock.ExpectQuery("SELECT id FROM policies WHERE app_id =").
		WithArgs(appID, name, excludeID).
		WillReturnError(sql.ErrNoRows)
}

func TestStoreAdd(t *testing.T) {
	t.Run("RequiredFields", func(t *testing.T) {
		db, _ := setupMockDB(t)
		store := NewStore(db)

		err := store.Add(context.Background(), &Policy{AppID: "a", TenantID: "t"})
		assert.True(t, IsValidation(err))

		err = store.Add(context.Background(), &Policy{Name: "n", TenantID: "t"})
		assert.True(t, IsValidation(err))

		err = store.Add(context.Background(), &Policy{Name: "n", AppID: "a"})
		assert.True(t, IsValidation(err))
	})

	t.Run("InsertsWithGeneratedID", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		p := classifiedPolicy()
		p.ID = ""

		expectNoUniqueCollision(mock, p.AppID, p.Code, p.Name, "")
		mock.ExpectExec("INSERT INTO policies").
			WithArgs(
				sqlmock.AnyArg(), p.Name, p.Code, p.Type, p.IsDefault, p.GrantStage,
				nil, p.AppID, nil, p.Enabled, p.TenantID, nil,
				sqlmock.AnyArg(), nil, sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Add(context.Background(), &p)
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CodeCollisionIsConflict", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		p := classifiedPolicy()
		mock.ExpectQuery("SELECT id FROM policies WHERE app_id =").
			WithArgs(p.AppID, p.Code, "").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("other"))

		err := store.Add(context.Background(), &p)
		assert.True(t, IsConflict(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConstraintRaceIsConflict", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		p := classifiedPolicy()
		expectNoUniqueCollision(mock, p.AppID, p.Code, p.Name, "")
		mock.ExpectExec("INSERT INTO policies").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "policies_app_id_code_key"})

		err := store.Add(context.Background(), &p)
		assert.True(t, IsConflict(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStoreUpdate(t *testing.T) {
	t.Run("ClassifiedFieldsStayFrozen", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		existing := classifiedPolicy()
		mock.ExpectQuery("SELECT id, name, code").
			WithArgs(existing.ID).
			WillReturnRows(policyRow(existing))

		newName := "Report Admin"
		newCode := "report_admin"
		newStage := GrantStageSignup
		disabled := false
		req := &UpdatePolicyRequest{
			Name:       &newName,
			Code:       &newCode,
			GrantStage: &newStage,
			Enabled:    &disabled,
		}

		expectNoUniqueCollision(mock, existing.AppID, existing.Code, newName, existing.ID)
		mock.ExpectExec("UPDATE policies").
			WithArgs(
				newName, existing.Code, existing.Type, existing.IsDefault, existing.GrantStage,
				nil, existing.AppID, nil, existing.Enabled,
				"admin-1", sqlmock.AnyArg(), existing.ID,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		updated, err := store.Update(context.Background(), existing.ID, "admin-1", req)
		require.NoError(t, err)
		assert.Equal(t, newName, updated.Name)
		assert.Equal(t, existing.Code, updated.Code, "code is frozen once classified")
		assert.Equal(t, existing.GrantStage, updated.GrantStage)
		assert.True(t, updated.Enabled, "enabled is frozen once classified")
		assert.Equal(t, "admin-1", updated.UpdatedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnclassifiedFieldsRemainEditable", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		existing := classifiedPolicy()
		existing.Code = ""
		existing.GrantStage = ""
		mock.ExpectQuery("SELECT id, name, code").
			WithArgs(existing.ID).
			WillReturnRows(policyRow(existing))

		newCode := "report_viewer"
		newStage := GrantStageManual
		req := &UpdatePolicyRequest{Code: &newCode, GrantStage: &newStage}

		expectNoUniqueCollision(mock, existing.AppID, newCode, existing.Name, existing.ID)
		mock.ExpectExec("UPDATE policies").
			WillReturnResult(sqlmock.NewResult(0, 1))

		updated, err := store.Update(context.Background(), existing.ID, "admin-1", req)
		require.NoError(t, err)
		assert.Equal(t, newCode, updated.Code)
		assert.Equal(t, newStage, updated.GrantStage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingPolicyIsNotFound", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		mock.ExpectQuery("SELECT id, name, code").
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := store.Update(context.Background(), "nope", "admin-1", &UpdatePolicyRequest{})
		assert.True(t, IsNotFound(err))
	})
}

func TestStoreReplace(t *testing.T) {
	t.Run("PreservesStoredClassification", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		existing := classifiedPolicy()
		mock.ExpectQuery("SELECT id, name, code").
			WithArgs(existing.ID).
			WillReturnRows(policyRow(existing))

		incoming := existing
		incoming.Name = "Renamed"
		incoming.Code = "hijacked_code"
		incoming.Type = TypePlatformPredefined
		incoming.Enabled = false
		incoming.Description = "new description"

		expectNoUniqueCollision(mock, existing.AppID, existing.Code, incoming.Name, existing.ID)
		mock.ExpectExec("UPDATE policies").
			WithArgs(
				"Renamed", incoming.IsDefault, "new description", nil,
				nil, sqlmock.AnyArg(), existing.ID,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		replaced, err := store.Replace(context.Background(), &incoming)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", replaced.Name)
		assert.Equal(t, existing.Code, replaced.Code)
		assert.Equal(t, existing.Type, replaced.Type)
		assert.True(t, replaced.Enabled)
		assert.Equal(t, existing.TenantID, replaced.TenantID)
		assert.Equal(t, existing.CreatedAt, replaced.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AbsentIDBehavesAsAdd", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		p := classifiedPolicy()
		p.ID = ""

		expectNoUniqueCollision(mock, p.AppID, p.Code, p.Name, "")
		mock.ExpectExec("INSERT INTO policies").
			WillReturnResult(sqlmock.NewResult(0, 1))

		replaced, err := store.Replace(context.Background(), &p)
		require.NoError(t, err)
		assert.NotEmpty(t, replaced.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStoreDelete(t *testing.T) {
	t.Run("EmptySetIsNoOp", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		assert.NoError(t, store.Delete(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeletesByIDSet", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		ids := []string{"pol-1", "pol-2"}
		mock.ExpectExec("DELETE FROM policies").
			WithArgs(pq.Array(ids)).
			WillReturnResult(sqlmock.NewResult(0, 2))

		assert.NoError(t, store.Delete(context.Background(), ids))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStoreGetPolicy(t *testing.T) {
	t.Run("ByID", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		existing := classifiedPolicy()
		existing.Description = "internal reporting"
		mock.ExpectQuery("SELECT id, name, code").
			WithArgs(existing.ID).
			WillReturnRows(policyRow(existing))

		p, err := store.GetPolicy(context.Background(), existing.ID)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, p.ID)
		assert.Equal(t, "internal reporting", p.Description)
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		mock.ExpectQuery("SELECT id, name, code").
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetPolicy(context.Background(), "nope")
		assert.True(t, IsNotFound(err))
	})

	t.Run("ByCode", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewStore(db)

		existing := classifiedPolicy()
		mock.ExpectQuery("SELECT id, name, code").
			WithArgs(existing.AppID, existing.Code).
			WillReturnRows(policyRow(existing))

		p, err := store.GetPolicyByCode(context.Background(), existing.AppID, existing.Code)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, p.ID)
	})
}

func TestStoreListPoliciesByIDs(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	t.Run("EmptySetShortCircuits", func(t *testing.T) {
		policies, err := store.ListPoliciesByIDs(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, policies)
	})

	t.Run("MissingIDsSkipped", func(t *testing.T) {
		existing := classifiedPolicy()
		mock.ExpectQuery("SELECT id, name, code").
			WithArgs(pq.Array([]string{existing.ID, "missing"})).
			WillReturnRows(policyRow(existing))

		policies, err := store.ListPoliciesByIDs(context.Background(), []string{existing.ID, "missing"})
		require.NoError(t, err)
		require.Len(t, policies, 1)
		assert.Equal(t, existing.ID, policies[0].ID)
	})
}

func TestMapUniqueViolation(t *testing.T) {
	assert.Nil(t, mapUniqueViolation(sql.ErrConnDone))
	assert.Nil(t, mapUniqueViolation(&pq.Error{Code: "23503"}))

	err := mapUniqueViolation(&pq.Error{Code: "23505", Constraint: "policies_app_id_code_key"})
	require.True(t, IsConflict(err))
	assert.Equal(t, "code", err.(*ConflictError).Field)

	err = mapUniqueViolation(&pq.Error{Code: "23505", Constraint: "policies_app_id_name_key"})
	require.True(t, IsConflict(err))
	assert.Equal(t, "name", err.(*ConflictError).Field)
}
