package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractControls(t *testing.T) {
	t.Run("SplitsControlKeysFromColumnFilters", func(t *testing.T) {
		controls, remaining, err := ExtractControls([]Filter{
			{Field: ControlOrgType, Op: OpEq, Value: "dept"},
			{Field: ControlOrgID, Op: OpEq, Value: "dept-1"},
			{Field: "enabled", Op: OpEq, Value: true},
		})
		require.NoError(t, err)

		require.NotNil(t, controls.OrgType)
		assert.Equal(t, OrgTypeDept, *controls.OrgType)
		assert.Equal(t, "dept-1", controls.OrgID)
		assert.False(t, controls.IgnoreAuthOrg)

		require.Len(t, remaining, 1)
		assert.Equal(t, "enabled", remaining[0].Field)
	})

	t.Run("IgnoreAuthOrgAcceptsBoolAndString", func(t *testing.T) {
		controls, _, err := ExtractControls([]Filter{
			{Field: ControlIgnoreAuthOrg, Op: OpEq, Value: true},
		})
		require.NoError(t, err)
		assert.True(t, controls.IgnoreAuthOrg)

		controls, _, err = ExtractControls([]Filter{
			{Field: ControlIgnoreAuthOrg, Op: OpEq, Value: "true"},
		})
		require.NoError(t, err)
		assert.True(t, controls.IgnoreAuthOrg)

		controls, _, err = ExtractControls([]Filter{
			{Field: ControlIgnoreAuthOrg, Op: OpEq, Value: "false"},
		})
		require.NoError(t, err)
		assert.False(t, controls.IgnoreAuthOrg)
	})

	t.Run("RejectsUnknownOrgType", func(t *testing.T) {
		_, _, err := ExtractControls([]Filter{
			{Field: ControlOrgType, Op: OpEq, Value: "galaxy"},
		})
		assert.True(t, IsValidation(err))
	})

	t.Run("RejectsNonStringOrgID", func(t *testing.T) {
		_, _, err := ExtractControls([]Filter{
			{Field: ControlOrgID, Op: OpEq, Value: 42},
		})
		assert.True(t, IsValidation(err))
	})

	t.Run("RejectsNonBoolIgnoreAuthOrg", func(t *testing.T) {
		_, _, err := ExtractControls([]Filter{
			{Field: ControlIgnoreAuthOrg, Op: OpEq, Value: 1},
		})
		assert.True(t, IsValidation(err))
	})
}

func TestAssemble(t *testing.T) {
	principal := Principal{
		UserID:   "user-1",
		TenantID: "tenant-1",
		DeptIDs:  []string{"dept-1", "dept-2"},
		GroupIDs: []string{"group-1"},
	}

	t.Run("FiltersCompileIntoBothUnionBranches", func(t *testing.T) {
		assembled, err := Assemble(QueryParams{
			TenantID: "tenant-1",
			Edition:  "cloud",
			Join:     JoinForUser(principal),
			Filters:  []Filter{{Field: "enabled", Op: OpEq, Value: true}},
		})
		require.NoError(t, err)

		sql, args := assembled.Count()
		assert.Contains(t, sql, "UNION")
		assert.Equal(t, 2, strings.Count(sql, "p.enabled = "),
			"filter must appear in the tenant branch and the platform branch")

		// tenant branch: tenantID + filter; platform branch: type + filter.
		assert.Equal(t, "tenant-1", args[0])
		assert.Equal(t, true, args[1])
		assert.Equal(t, string(TypePlatformPredefined), args[2])
		assert.Equal(t, true, args[3])
	})

	t.Run("UserJoinCarriesAllMembershipArms", func(t *testing.T) {
		assembled, err := Assemble(QueryParams{
			TenantID: "tenant-1",
			Edition:  "cloud",
			Join:     JoinForUser(principal),
		})
		require.NoError(t, err)

		sql, _ := assembled.Count()
		assert.Contains(t, sql, "b.org_type = 'user'")
		assert.Contains(t, sql, "b.org_type = 'dept'")
		assert.Contains(t, sql, "b.org_type = 'group'")
		assert.Contains(t, sql, "b.org_type = 'tenant'")
		assert.Contains(t, sql, "b.is_default = TRUE")
		assert.Contains(t, sql, "b.open_auth = TRUE AND b.grant_scope = ")
	})

	t.Run("SysAdminSkipsGrantScopeRestriction", func(t *testing.T) {
		admin := principal
		admin.IsSysAdmin = true

		assembled, err := Assemble(QueryParams{
			TenantID: "tenant-1",
			Edition:  "cloud",
			Join:     JoinForUser(admin),
		})
		require.NoError(t, err)

		sql, args := assembled.Count()
		assert.NotContains(t, sql, "grant_scope")
		for _, a := range args {
			assert.NotEqual(t, string(GrantScopeTenantAllUser), a)
		}
	})

	t.Run("MembershiplessUserOmitsDeptAndGroupArms", func(t *testing.T) {
		bare := Principal{UserID: "user-1", TenantID: "tenant-1"}

		assembled, err := Assemble(QueryParams{
			TenantID: "tenant-1",
			Edition:  "cloud",
			Join:     JoinForUser(bare),
		})
		require.NoError(t, err)

		sql, _ := assembled.Count()
		assert.NotContains(t, sql, "b.org_type = 'dept'")
		assert.NotContains(t, sql, "b.org_type = 'group'")
		assert.Contains(t, sql, "b.org_type = 'user'")
		assert.Contains(t, sql, "b.org_type = 'tenant'")
	})

	t.Run("OrgJoinMatchesExactly", func(t *testing.T) {
		assembled, err := Assemble(QueryParams{
			TenantID: "tenant-1",
			Edition:  "cloud",
			Join:     JoinForOrg("dept-1", OrgTypeDept),
		})
		require.NoError(t, err)

		sql, _ := assembled.Count()
		assert.Contains(t, sql, "b.org_id = ")
		assert.NotContains(t, sql, "b.org_type = 'user'")
		assert.NotContains(t, sql, "b.is_default = TRUE")
	})

	t.Run("IgnoreAuthOrgDropsBindingJoin", func(t *testing.T) {
		assembled, err := Assemble(QueryParams{
			TenantID:      "tenant-1",
			Edition:       "cloud",
			IgnoreAuthOrg: true,
		})
		require.NoError(t, err)

		sql, _ := assembled.Count()
		assert.NotContains(t, sql, "policy_bindings")
		assert.Contains(t, sql, "app_opens")
	})

	t.Run("SkipAppOpenDropsAppOpenJoin", func(t *testing.T) {
		assembled, err := Assemble(QueryParams{
			TenantID:    "tenant-1",
			Edition:     "cloud",
			Join:        JoinForUser(principal),
			SkipAppOpen: true,
		})
		require.NoError(t, err)

		sql, _ := assembled.Count()
		assert.NotContains(t, sql, "app_opens")
	})

	t.Run("UnknownFilterFieldRejected", func(t *testing.T) {
		_, err := Assemble(QueryParams{
			TenantID: "tenant-1",
			Join:     JoinForUser(principal),
			Filters:  []Filter{{Field: "password", Op: OpEq, Value: "x"}},
		})
		assert.True(t, IsValidation(err))
	})

	t.Run("UnknownFilterOpRejected", func(t *testing.T) {
		_, err := Assemble(QueryParams{
			TenantID: "tenant-1",
			Join:     JoinForUser(principal),
			Filters:  []Filter{{Field: "name", Op: "regex", Value: "x"}},
		})
		assert.True(t, IsValidation(err))
	})

	t.Run("InFilterRequiresValues", func(t *testing.T) {
		_, err := Assemble(QueryParams{
			TenantID: "tenant-1",
			Join:     JoinForUser(principal),
			Filters:  []Filter{{Field: "type", Op: OpIn}},
		})
		assert.True(t, IsValidation(err))
	})
}

func TestAssembledProjections(t *testing.T) {
	assembled, err := Assemble(QueryParams{
		TenantID: "tenant-1",
		Edition:  "cloud",
		Join:     JoinForOrg("dept-1", OrgTypeDept),
	})
	require.NoError(t, err)

	t.Run("RowsAppendsLimitAndOffset", func(t *testing.T) {
		countSQL, countArgs := assembled.Count()
		rowsSQL, rowArgs := assembled.Rows(Page{Number: 3, Size: 10})

		assert.Contains(t, rowsSQL, "SELECT DISTINCT")
		assert.Contains(t, rowsSQL, "ORDER BY p.id ASC")
		assert.Len(t, rowArgs, len(countArgs)+2)
		assert.Equal(t, 10, rowArgs[len(rowArgs)-2])
		assert.Equal(t, 20, rowArgs[len(rowArgs)-1])

		assert.Contains(t, countSQL, "SELECT COUNT(DISTINCT p.id)")
	})

	t.Run("CountSharesBaseWithRows", func(t *testing.T) {
		countSQL, _ := assembled.Count()
		rowsSQL, _ := assembled.Rows(Page{})

		base := strings.TrimPrefix(countSQL, "SELECT COUNT(DISTINCT p.id)\n")
		assert.Contains(t, rowsSQL, base)
	})

	t.Run("ResolveRowsOrdersByGrantTime", func(t *testing.T) {
		sql, args := assembled.ResolveRows()
		assert.Contains(t, sql, "b.granted_by, b.granted_at")
		assert.Contains(t, sql, "ORDER BY b.granted_at ASC, p.id ASC")

		countSQL, countArgs := assembled.Count()
		assert.Equal(t, countArgs, args)
		assert.Contains(t, sql, strings.TrimPrefix(countSQL, "SELECT COUNT(DISTINCT p.id)\n"))
	})
}
