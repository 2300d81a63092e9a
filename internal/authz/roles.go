package authz

import "github.com/hugh/schoolyard/internal/database/models"

// Action vocabulary. Downstream CRUD handlers gate on these; roles map to a
// fixed default subset and memberships may carry explicit overrides.
const (
	ActionStudentsRead       = "students.read"
	ActionStudentsWrite      = "students.write"
	ActionAttendanceRead     = "attendance.read"
	ActionAttendanceWrite    = "attendance.write"
	ActionGradebookRead      = "gradebook.read"
	ActionGradebookWrite     = "gradebook.write"
	ActionTimetableRead      = "timetable.read"
	ActionTimetableWrite     = "timetable.write"
	ActionFinanceRead        = "finance.read"
	ActionFinanceWrite       = "finance.write"
	ActionEnrollmentManage   = "enrollment.manage"
	ActionMembershipsManage  = "memberships.manage"
	ActionUsersRead          = "users.read"
	ActionReportsRead        = "reports.read"
	ActionLibraryRead        = "library.read"
	ActionLibraryManage      = "library.manage"
	ActionAnnouncementsRead  = "announcements.read"
	ActionAnnouncementsWrite = "announcements.write"
	ActionSettingsManage     = "settings.manage"
)

// defaultPermissions is the fixed per-role default table. It is static:
// changing a membership's explicit permissions never alters the defaults
// other memberships with the same role fall back to.
var defaultPermissions = map[models.SchoolRole][]string{
	models.RolePrincipal: {
		ActionStudentsRead, ActionStudentsWrite, ActionAttendanceRead,
		ActionGradebookRead, ActionTimetableRead, ActionTimetableWrite,
		ActionFinanceRead, ActionEnrollmentManage, ActionMembershipsManage,
		ActionUsersRead, ActionReportsRead, ActionAnnouncementsRead,
		ActionAnnouncementsWrite, ActionSettingsManage,
	},
	models.RoleDeputyPrincipal: {
		ActionStudentsRead, ActionStudentsWrite, ActionAttendanceRead,
		ActionGradebookRead, ActionTimetableRead, ActionTimetableWrite,
		ActionEnrollmentManage, ActionUsersRead, ActionReportsRead,
		ActionAnnouncementsRead, ActionAnnouncementsWrite,
	},
	models.RoleAcademicHead: {
		ActionStudentsRead, ActionGradebookRead, ActionGradebookWrite,
		ActionTimetableRead, ActionTimetableWrite, ActionReportsRead,
		ActionAnnouncementsRead,
	},
	models.RoleDepartmentHead: {
		ActionStudentsRead, ActionGradebookRead, ActionGradebookWrite,
		ActionTimetableRead, ActionReportsRead, ActionAnnouncementsRead,
	},
	models.RoleTeacher: {
		ActionStudentsRead, ActionAttendanceRead, ActionAttendanceWrite,
		ActionGradebookRead, ActionGradebookWrite, ActionTimetableRead,
		ActionAnnouncementsRead,
	},
	models.RoleFormTeacher: {
		ActionStudentsRead, ActionAttendanceRead, ActionAttendanceWrite,
		ActionGradebookRead, ActionGradebookWrite, ActionTimetableRead,
		ActionAnnouncementsRead, ActionAnnouncementsWrite,
	},
	models.RoleRegistrar: {
		ActionStudentsRead, ActionStudentsWrite, ActionEnrollmentManage,
		ActionTimetableRead, ActionUsersRead, ActionReportsRead,
		ActionAnnouncementsRead,
	},
	models.RoleBursar: {
		ActionStudentsRead, ActionFinanceRead, ActionFinanceWrite,
		ActionReportsRead, ActionAnnouncementsRead,
	},
	models.RoleLibrarian: {
		ActionStudentsRead, ActionLibraryRead, ActionLibraryManage,
		ActionAnnouncementsRead,
	},
	models.RoleITSupport: {
		ActionUsersRead, ActionSettingsManage, ActionAnnouncementsRead,
	},
	models.RoleSecurity: {
		ActionStudentsRead, ActionAttendanceRead, ActionAnnouncementsRead,
	},
	models.RoleParent: {
		ActionStudentsRead, ActionAttendanceRead, ActionGradebookRead,
		ActionFinanceRead, ActionAnnouncementsRead,
	},
	models.RoleStudent: {
		ActionTimetableRead, ActionGradebookRead, ActionAttendanceRead,
		ActionLibraryRead, ActionAnnouncementsRead,
	},
}

// RoleDefaults returns a copy of the default permission set for a role.
// Unknown roles get nothing.
func RoleDefaults(role models.SchoolRole) []string {
	defaults, ok := defaultPermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(defaults))
	copy(out, defaults)
	return out
}

func roleDefaultContains(role models.SchoolRole, action string) bool {
	for _, a := range defaultPermissions[role] {
		if a == action {
			return true
		}
	}
	return false
}

// sensitiveActionPrefixes mark allows that are audited even on success.
var sensitiveActionPrefixes = []string{"finance.", "users.", "memberships.", "settings."}
