package rbac

const (
	PermQuestionWrite = "question:write"
	PermConfigWrite   = "config:write"
	PermConfigView    = "config:view"
	PermQuizTake      = "quiz:take"
	PermResultViewOwn = "result:view-own"
	PermResultViewAll = "result:view-all"
	PermResultGrade   = "result:grade"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		PermConfigView,
		PermQuizTake,
		PermResultViewOwn,
	},
	"teacher": {
		PermQuestionWrite,
		"config:*",
		PermQuizTake,
		"result:*",
	},
	"admin": {
		"*", // everything
	},
}
