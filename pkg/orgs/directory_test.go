package orgs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDirectory(t *testing.T) (*Directory, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDirectory(db), mock
}

func TestDirectoryMembershipsFor(t *testing.T) {
	t.Run("CollectsDeptAndGroupMemberships", func(t *testing.T) {
		d, mock := setupMockDirectory(t)

		rows := sqlmock.NewRows([]string{"org_id", "org_type"}).
			AddRow("dept-1", "dept").
			AddRow("group-1", "group").
			AddRow("dept-2", "dept")
		mock.ExpectQuery("SELECT org_id, org_type").
			WithArgs("user-1", "tenant-1", UnitDept, UnitGroup).
			WillReturnRows(rows)
		mock.ExpectQuery("SELECT is_sys_admin FROM tenant_admins").
			WithArgs("tenant-1", "user-1").
			WillReturnError(sql.ErrNoRows)

		m, err := d.MembershipsFor(context.Background(), "user-1", "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"dept-1", "dept-2"}, m.DeptIDs)
		assert.Equal(t, []string{"group-1"}, m.GroupIDs)
		assert.False(t, m.TenantAdmin)
		assert.False(t, m.SysAdmin)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AdminRowSetsBothFlags", func(t *testing.T) {
		d, mock := setupMockDirectory(t)

		mock.ExpectQuery("SELECT org_id, org_type").
			WillReturnRows(sqlmock.NewRows([]string{"org_id", "org_type"}))
		mock.ExpectQuery("SELECT is_sys_admin FROM tenant_admins").
			WithArgs("tenant-1", "admin-1").
			WillReturnRows(sqlmock.NewRows([]string{"is_sys_admin"}).AddRow(true))

		m, err := d.MembershipsFor(context.Background(), "admin-1", "tenant-1")
		require.NoError(t, err)
		assert.True(t, m.TenantAdmin)
		assert.True(t, m.SysAdmin)
	})

	t.Run("OrdinaryAdminIsNotSysAdmin", func(t *testing.T) {
		d, mock := setupMockDirectory(t)

		mock.ExpectQuery("SELECT org_id, org_type").
			WillReturnRows(sqlmock.NewRows([]string{"org_id", "org_type"}))
		mock.ExpectQuery("SELECT is_sys_admin FROM tenant_admins").
			WillReturnRows(sqlmock.NewRows([]string{"is_sys_admin"}).AddRow(false))

		m, err := d.MembershipsFor(context.Background(), "admin-1", "tenant-1")
		require.NoError(t, err)
		assert.True(t, m.TenantAdmin)
		assert.False(t, m.SysAdmin)
	})
}

func TestDirectoryAdminChecks(t *testing.T) {
	t.Run("IsSysAdmin", func(t *testing.T) {
		d, mock := setupMockDirectory(t)

		mock.ExpectQuery("SELECT is_sys_admin FROM tenant_admins").
			WithArgs("tenant-1", "user-1").
			WillReturnError(sql.ErrNoRows)

		sysAdmin, err := d.IsSysAdmin(context.Background(), "user-1", "tenant-1")
		require.NoError(t, err)
		assert.False(t, sysAdmin)
	})

	t.Run("IsTenantAdmin", func(t *testing.T) {
		d, mock := setupMockDirectory(t)

		mock.ExpectQuery("SELECT 1 FROM tenant_admins").
			WithArgs("tenant-1", "admin-1").
			WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

		admin, err := d.IsTenantAdmin(context.Background(), "admin-1", "tenant-1")
		require.NoError(t, err)
		assert.True(t, admin)
	})
}

func TestDirectoryAddMember(t *testing.T) {
	t.Run("RejectsUnknownOrgType", func(t *testing.T) {
		d, _ := setupMockDirectory(t)

		err := d.AddMember(context.Background(), &Member{
			UserID: "user-1", OrgID: "tenant-1", OrgType: "tenant", TenantID: "tenant-1",
		})
		assert.Error(t, err)
	})

	t.Run("UpsertsMembership", func(t *testing.T) {
		d, mock := setupMockDirectory(t)

		mock.ExpectExec("INSERT INTO org_members").
			WithArgs("user-1", "dept-1", UnitDept, "tenant-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := d.AddMember(context.Background(), &Member{
			UserID: "user-1", OrgID: "dept-1", OrgType: UnitDept, TenantID: "tenant-1",
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDirectoryRemoveMember(t *testing.T) {
	t.Run("RemovesMembership", func(t *testing.T) {
		d, mock := setupMockDirectory(t)

		mock.ExpectExec("DELETE FROM org_members").
			WithArgs("user-1", "dept-1", UnitDept).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, d.RemoveMember(context.Background(), "user-1", "dept-1", UnitDept))
	})

	t.Run("AbsentMembershipIsError", func(t *testing.T) {
		d, mock := setupMockDirectory(t)

		mock.ExpectExec("DELETE FROM org_members").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.Error(t, d.RemoveMember(context.Background(), "user-1", "dept-1", UnitDept))
	})
}

func TestDirectorySetAdmin(t *testing.T) {
	d, mock := setupMockDirectory(t)

	mock.ExpectExec("INSERT INTO tenant_admins").
		WithArgs("tenant-1", "admin-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, d.SetAdmin(context.Background(), "tenant-1", "admin-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryListMembers(t *testing.T) {
	d, mock := setupMockDirectory(t)

	joined := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "org_id", "org_type", "tenant_id", "joined_at"}).
		AddRow(int64(1), "user-1", "dept-1", "dept", "tenant-1", joined).
		AddRow(int64(2), "user-2", "dept-1", "dept", "tenant-1", joined.Add(time.Minute))

	mock.ExpectQuery("SELECT id, user_id, org_id, org_type").
		WithArgs("dept-1", UnitDept).
		WillReturnRows(rows)

	members, err := d.ListMembers(context.Background(), "dept-1", UnitDept)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "user-1", members[0].UserID)
	assert.Equal(t, "user-2", members[1].UserID)
}
