package admin

// Fixed permission catalog. Dependent services reference these
// resource/action strings literally, so names and pairs must not
// change.
type CatalogPermission struct {
	Name        string
	Resource    string
	Action      string
	Description string
}

type CatalogRole struct {
	Name         string
	Description  string
	IsSystemRole bool
	IsDefault    bool
	Permissions  []string // permission names attached at seed time
}

const (
	RoleSuperAdmin  = "Super Admin"
	RoleOrgAdmin    = "Organization Admin"
	RoleTeamLead    = "Team Lead"
	RoleRegularUser = "Regular User"
	RoleGuestUser   = "Guest User"
)

var DefaultPermissions = []CatalogPermission{
	{Name: "system.admin", Resource: "system", Action: "admin", Description: "Full system administration"},

	{Name: "organization.read", Resource: "organization", Action: "read", Description: "View organization details"},
	{Name: "organization.update", Resource: "organization", Action: "update", Description: "Update organization settings"},

	{Name: "user.create", Resource: "user", Action: "create", Description: "Create users"},
	{Name: "user.read", Resource: "user", Action: "read", Description: "View users"},
	{Name: "user.update", Resource: "user", Action: "update", Description: "Update users"},
	{Name: "user.delete", Resource: "user", Action: "delete", Description: "Delete users"},
	{Name: "user.invite", Resource: "user", Action: "invite", Description: "Invite users"},

	{Name: "knowledge_base.create", Resource: "knowledge_base", Action: "create", Description: "Create knowledge bases"},
	{Name: "knowledge_base.read", Resource: "knowledge_base", Action: "read", Description: "View knowledge bases"},
	{Name: "knowledge_base.update", Resource: "knowledge_base", Action: "update", Description: "Update knowledge bases"},
	{Name: "knowledge_base.delete", Resource: "knowledge_base", Action: "delete", Description: "Delete knowledge bases"},

	{Name: "analytics.read", Resource: "analytics", Action: "read", Description: "View analytics"},
	{Name: "analytics.admin", Resource: "analytics", Action: "admin", Description: "Administer analytics"},

	{Name: "conversation.create", Resource: "conversation", Action: "create", Description: "Create conversations"},
	{Name: "conversation.read", Resource: "conversation", Action: "read", Description: "View conversations"},
	{Name: "conversation.update", Resource: "conversation", Action: "update", Description: "Update conversations"},
	{Name: "conversation.delete", Resource: "conversation", Action: "delete", Description: "Delete conversations"},

	{Name: "scraping.submit", Resource: "scraping", Action: "submit", Description: "Submit scraping jobs"},
	{Name: "scraping.admin", Resource: "scraping", Action: "admin", Description: "Administer scraping jobs"},

	{Name: "profile.read", Resource: "profile", Action: "read", Description: "View own profile"},
	{Name: "profile.update", Resource: "profile", Action: "update", Description: "Update own profile"},
}

var DefaultRoles = []CatalogRole{
	{
		Name:         RoleSuperAdmin,
		Description:  "Full access across all organizations",
		IsSystemRole: true,
		Permissions:  allPermissionNames(),
	},
	{
		Name:        RoleOrgAdmin,
		Description: "Full access within one organization",
		Permissions: []string{
			"organization.read", "organization.update",
			"user.create", "user.read", "user.update", "user.delete", "user.invite",
			"knowledge_base.create", "knowledge_base.read", "knowledge_base.update", "knowledge_base.delete",
			"analytics.read", "analytics.admin",
			"conversation.create", "conversation.read", "conversation.update", "conversation.delete",
			"scraping.submit", "scraping.admin",
			"profile.read", "profile.update",
		},
	},
	{
		Name:        RoleTeamLead,
		Description: "Team management and content creation",
		Permissions: []string{
			"organization.read",
			"user.read", "user.invite",
			"knowledge_base.create", "knowledge_base.read", "knowledge_base.update",
			"analytics.read",
			"conversation.create", "conversation.read", "conversation.update", "conversation.delete",
			"scraping.submit",
			"profile.read", "profile.update",
		},
	},
	{
		Name:        RoleRegularUser,
		Description: "Standard member access",
		IsDefault:   true,
		Permissions: []string{
			"organization.read",
			"user.read",
			"knowledge_base.read",
			"conversation.create", "conversation.read", "conversation.update",
			"scraping.submit",
			"profile.read", "profile.update",
		},
	},
	{
		Name:        RoleGuestUser,
		Description: "Read-only guest access",
		Permissions: []string{
			"knowledge_base.read",
			"conversation.read",
			"profile.read",
		},
	},
}

func allPermissionNames() []string {
	names := make([]string, 0, len(DefaultPermissions))
	for _, p := range DefaultPermissions {
		names = append(names, p.Name)
	}
	return names
}
