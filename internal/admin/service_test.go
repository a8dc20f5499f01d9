package admin_test

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"testing"
	"time"

	"github.com/frahmantamala/authz/internal"
	"github.com/frahmantamala/authz/internal/admin"
	"github.com/frahmantamala/authz/internal/audit"
	"github.com/frahmantamala/authz/internal/core/events"
	"github.com/frahmantamala/authz/internal/decision"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAdminService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Admin Service Suite")
}

// MockRepository implements admin.RepositoryAPI in memory
type MockRepository struct {
	roles           map[string]*admin.Role
	permissions     map[string]*admin.Permission
	links           map[string]map[string]bool // roleID -> permissionID
	grants          map[string]map[string]*grantRow
	users           map[string]*admin.User
	orgs            map[string]bool
	shouldFail      bool
	failError       error
	upsertFailError error
}

type grantRow struct {
	active    bool
	expiresAt *time.Time
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		roles:       make(map[string]*admin.Role),
		permissions: make(map[string]*admin.Permission),
		links:       make(map[string]map[string]bool),
		grants:      make(map[string]map[string]*grantRow),
		users:       make(map[string]*admin.User),
		orgs:        make(map[string]bool),
	}
}

// Transaction restores the top-level maps when fn fails, mirroring the
// rollback the real store performs.
func (m *MockRepository) Transaction(_ context.Context, fn func(admin.RepositoryAPI) error) error {
	roles := maps.Clone(m.roles)
	permissions := maps.Clone(m.permissions)
	grants := maps.Clone(m.grants)
	users := maps.Clone(m.users)
	if err := fn(m); err != nil {
		m.roles, m.permissions, m.grants, m.users = roles, permissions, grants, users
		return err
	}
	return nil
}

func (m *MockRepository) CreateRole(_ context.Context, role *admin.Role) error {
	if m.shouldFail {
		return m.failError
	}
	for _, existing := range m.roles {
		sameOrg := (existing.OrganizationID == nil && role.OrganizationID == nil) ||
			(existing.OrganizationID != nil && role.OrganizationID != nil && *existing.OrganizationID == *role.OrganizationID)
		if existing.Name == role.Name && sameOrg {
			return internal.ErrDuplicateRole
		}
	}
	m.roles[role.ID] = role
	return nil
}

func (m *MockRepository) GetRole(_ context.Context, roleID string) (*admin.Role, error) {
	role, ok := m.roles[roleID]
	if !ok {
		return nil, internal.ErrRoleNotFound
	}
	return role, nil
}

func (m *MockRepository) GetRoleByName(_ context.Context, name string, organizationID *string) (*admin.Role, error) {
	for _, role := range m.roles {
		if role.Name != name {
			continue
		}
		if organizationID == nil && role.OrganizationID == nil {
			return role, nil
		}
		if organizationID != nil && role.OrganizationID != nil && *role.OrganizationID == *organizationID {
			return role, nil
		}
	}
	return nil, internal.ErrRoleNotFound
}

func (m *MockRepository) ListRoles(_ context.Context, _ *string) ([]admin.Role, error) {
	out := make([]admin.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (m *MockRepository) ListDefaultRoles(_ context.Context, _ *string) ([]admin.Role, error) {
	out := []admin.Role{}
	for _, r := range m.roles {
		if r.IsDefault {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *MockRepository) CreatePermission(_ context.Context, permission *admin.Permission) error {
	if m.shouldFail {
		return m.failError
	}
	for _, existing := range m.permissions {
		if existing.Resource == permission.Resource && existing.Action == permission.Action {
			return internal.ErrDuplicatePermission
		}
	}
	m.permissions[permission.ID] = permission
	return nil
}

func (m *MockRepository) GetPermissionByPair(_ context.Context, resource, action string) (*admin.Permission, error) {
	for _, p := range m.permissions {
		if p.Resource == resource && p.Action == action {
			return p, nil
		}
	}
	return nil, internal.ErrPermissionNotFound
}

func (m *MockRepository) ListPermissions(_ context.Context) ([]admin.Permission, error) {
	out := make([]admin.Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, *p)
	}
	return out, nil
}

func (m *MockRepository) AttachPermission(_ context.Context, roleID, permissionID string, _ *string) error {
	if _, ok := m.roles[roleID]; !ok {
		return internal.ErrRoleNotFound
	}
	if _, ok := m.permissions[permissionID]; !ok {
		return internal.ErrPermissionNotFound
	}
	if m.links[roleID] == nil {
		m.links[roleID] = make(map[string]bool)
	}
	m.links[roleID][permissionID] = true
	return nil
}

func (m *MockRepository) DetachPermission(_ context.Context, roleID, permissionID string) error {
	delete(m.links[roleID], permissionID)
	return nil
}

func (m *MockRepository) UpsertGrant(_ context.Context, userID, roleID string, _ *string, expiresAt *time.Time) error {
	if m.shouldFail {
		return m.failError
	}
	if m.upsertFailError != nil {
		return m.upsertFailError
	}
	if m.grants[userID] == nil {
		m.grants[userID] = make(map[string]*grantRow)
	}
	m.grants[userID][roleID] = &grantRow{active: true, expiresAt: expiresAt}
	return nil
}

func (m *MockRepository) RevokeGrant(_ context.Context, userID, roleID string) error {
	if row, ok := m.grants[userID][roleID]; ok {
		row.active = false
	}
	return nil
}

func (m *MockRepository) ListUserRoles(_ context.Context, userID string) ([]admin.UserRoleInfo, error) {
	out := []admin.UserRoleInfo{}
	for roleID, row := range m.grants[userID] {
		out = append(out, admin.UserRoleInfo{
			RoleID:    roleID,
			RoleName:  m.roles[roleID].Name,
			IsActive:  row.active,
			ExpiresAt: row.expiresAt,
		})
	}
	return out, nil
}

func (m *MockRepository) ListRoleUserIDs(_ context.Context, roleID string) ([]string, error) {
	out := []string{}
	for userID, rows := range m.grants {
		if row, ok := rows[roleID]; ok && row.active {
			out = append(out, userID)
		}
	}
	return out, nil
}

func (m *MockRepository) CreateUser(_ context.Context, user *admin.User) error {
	if m.shouldFail {
		return m.failError
	}
	m.users[user.ID] = user
	return nil
}

func (m *MockRepository) GetUserOrganization(_ context.Context, userID string) (*string, error) {
	user, ok := m.users[userID]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	return user.OrganizationID, nil
}

func (m *MockRepository) OrganizationExists(_ context.Context, organizationID string) (bool, error) {
	return m.orgs[organizationID], nil
}

func (m *MockRepository) AddOrganization(organizationID string) {
	m.orgs[organizationID] = true
}

func (m *MockRepository) SetShouldFail(shouldFail bool, err error) {
	m.shouldFail = shouldFail
	m.failError = err
}

// MockDecider implements admin.AccessDecider with a fixed allow set
type MockDecider struct {
	allowed map[string]bool // "userID/resource.action"
}

func NewMockDecider() *MockDecider {
	return &MockDecider{allowed: make(map[string]bool)}
}

func (m *MockDecider) Allow(userID, resource, action string) {
	m.allowed[userID+"/"+resource+"."+action] = true
}

func (m *MockDecider) Decide(_ context.Context, userID, resource, action string, _ *string) decision.Decision {
	if m.allowed[userID+"/"+resource+"."+action] {
		return decision.Decision{Allow: true}
	}
	return decision.Decision{Allow: false, Reason: decision.ReasonInsufficientPermission}
}

func (m *MockDecider) DecideAny(ctx context.Context, userID string, pairs []decision.PermissionRef, organizationID *string) decision.Decision {
	for _, pair := range pairs {
		if d := m.Decide(ctx, userID, pair.Resource, pair.Action, organizationID); d.Allow {
			return d
		}
	}
	return decision.Decision{Allow: false, Reason: decision.ReasonInsufficientPermission, Missing: pairs}
}

// CapturingRecorder implements audit.RecorderAPI
type CapturingRecorder struct {
	records []audit.Record
}

func (c *CapturingRecorder) Enqueue(_ context.Context, record audit.Record) error {
	c.records = append(c.records, record)
	return nil
}

// fakeAuditReader satisfies audit.RepositoryAPI for the read surface
type fakeAuditReader struct {
	records []audit.Record
}

func (f *fakeAuditReader) AppendBatch(_ context.Context, records []audit.Record) error {
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeAuditReader) List(_ context.Context, _ audit.ListFilter) ([]audit.Record, error) {
	return f.records, nil
}

var _ = Describe("Admin Service", func() {
	var (
		mockRepo *MockRepository
		decider  *MockDecider
		recorder *CapturingRecorder
		bus      *events.EventBus
		service  *admin.Service
		ctx      context.Context
	)

	orgA := "org-a"
	orgB := "org-b"
	superUser := internal.Actor{UserID: "admin-1"}
	orgAdmin := internal.Actor{UserID: "org-admin-1", OrganizationID: &orgA}
	nobody := internal.Actor{UserID: "nobody-1"}

	BeforeEach(func() {
		mockRepo = NewMockRepository()
		mockRepo.AddOrganization(orgA)
		mockRepo.AddOrganization(orgB)
		decider = NewMockDecider()
		decider.Allow("admin-1", "system", "admin")
		decider.Allow("org-admin-1", "organization", "update")

		recorder = &CapturingRecorder{}
		log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus = events.NewEventBus(log)
		service = admin.NewService(mockRepo, decider, recorder, &fakeAuditReader{}, bus, log)
		ctx = context.Background()
	})

	Describe("CreateRole", func() {
		It("should create a role and record the mutation", func() {
			role, err := service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Auditor"})
			Expect(err).NotTo(HaveOccurred())
			Expect(role.ID).NotTo(BeEmpty())
			Expect(recorder.records).To(HaveLen(1))
			Expect(recorder.records[0].Action).To(Equal(audit.ActionRoleCreated))
			Expect(*recorder.records[0].ActorUserID).To(Equal("admin-1"))
		})

		It("should reject callers without administration permissions", func() {
			_, err := service.CreateRole(ctx, nobody, admin.CreateRoleDTO{Name: "Auditor"})
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInsufficientPerm))
			Expect(recorder.records).To(BeEmpty())
		})

		It("should let an organization admin create roles in their organization", func() {
			role, err := service.CreateRole(ctx, orgAdmin, admin.CreateRoleDTO{Name: "Auditor", OrganizationID: &orgA})
			Expect(err).NotTo(HaveOccurred())
			Expect(role.OrganizationID).To(Equal(&orgA))
		})

		It("should require system admin for system roles", func() {
			_, err := service.CreateRole(ctx, orgAdmin, admin.CreateRoleDTO{Name: "Global Auditor", IsSystemRole: true})
			Expect(err).To(HaveOccurred())

			_, err = service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Global Auditor", IsSystemRole: true})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should surface duplicate role names as a conflict", func() {
			_, err := service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Auditor"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Auditor"})
			Expect(err).To(MatchError(internal.ErrDuplicateRole))
		})

		It("should reject roles scoped to an unknown organization", func() {
			ghost := "org-ghost"
			_, err := service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Auditor", OrganizationID: &ghost})
			Expect(err).To(MatchError(internal.ErrOrgNotFound))
		})

		It("should reject organization-scoped system roles", func() {
			_, err := service.CreateRole(ctx, superUser, admin.CreateRoleDTO{
				Name: "Broken", IsSystemRole: true, OrganizationID: &orgA,
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CreatePermission", func() {
		It("should surface duplicate resource/action pairs as a conflict", func() {
			_, err := service.CreatePermission(ctx, superUser, admin.CreatePermissionDTO{
				Name: "report.read", Resource: "report", Action: "read",
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.CreatePermission(ctx, superUser, admin.CreatePermissionDTO{
				Name: "report.read.again", Resource: "report", Action: "read",
			})
			Expect(err).To(MatchError(internal.ErrDuplicatePermission))
		})
	})

	Describe("GrantRole", func() {
		var roleA *admin.Role

		BeforeEach(func() {
			var err error
			roleA, err = service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Member", OrganizationID: &orgA})
			Expect(err).NotTo(HaveOccurred())
			decider.Allow("org-admin-1", "organization", "update")

			Expect(mockRepo.CreateUser(ctx, &admin.User{ID: "user-a", OrganizationID: &orgA})).To(Succeed())
			Expect(mockRepo.CreateUser(ctx, &admin.User{ID: "user-b", OrganizationID: &orgB})).To(Succeed())
			recorder.records = nil
		})

		It("should grant a role to a user in the same organization", func() {
			err := service.GrantRole(ctx, orgAdmin, admin.GrantRoleDTO{UserID: "user-a", RoleID: roleA.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.records).To(HaveLen(1))
			Expect(recorder.records[0].Action).To(Equal(audit.ActionRoleGranted))
		})

		It("should reject cross-organization grants with ORG_MISMATCH", func() {
			err := service.GrantRole(ctx, orgAdmin, admin.GrantRoleDTO{UserID: "user-b", RoleID: roleA.ID})
			Expect(err).To(MatchError(internal.ErrOrgMismatch))
		})

		It("should let a system admin grant across organizations", func() {
			err := service.GrantRole(ctx, superUser, admin.GrantRoleDTO{UserID: "user-b", RoleID: roleA.ID})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should accept an expiry already in the past", func() {
			past := time.Now().Add(-time.Second)
			err := service.GrantRole(ctx, superUser, admin.GrantRoleDTO{UserID: "user-a", RoleID: roleA.ID, ExpiresAt: &past})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should fail for unknown users", func() {
			err := service.GrantRole(ctx, superUser, admin.GrantRoleDTO{UserID: "ghost", RoleID: roleA.ID})
			Expect(err).To(MatchError(internal.ErrUserNotFound))
		})

		It("should fail for unknown roles", func() {
			err := service.GrantRole(ctx, superUser, admin.GrantRoleDTO{UserID: "user-a", RoleID: "ghost"})
			Expect(err).To(MatchError(internal.ErrRoleNotFound))
		})

		It("should publish a grant event for cache invalidation", func() {
			var invalidated []string
			bus.Subscribe(events.EventTypeRoleGranted, func(_ context.Context, event events.Event) error {
				if e, ok := event.(events.RoleGrantEvent); ok {
					invalidated = append(invalidated, e.UserID)
				}
				return nil
			})

			err := service.GrantRole(ctx, superUser, admin.GrantRoleDTO{UserID: "user-a", RoleID: roleA.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(invalidated).To(ConsistOf("user-a"))
		})
	})

	Describe("RevokeRole", func() {
		var role *admin.Role

		BeforeEach(func() {
			var err error
			role, err = service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Member"})
			Expect(err).NotTo(HaveOccurred())
			Expect(mockRepo.CreateUser(ctx, &admin.User{ID: "user-a"})).To(Succeed())
			Expect(service.GrantRole(ctx, superUser, admin.GrantRoleDTO{UserID: "user-a", RoleID: role.ID})).To(Succeed())
			recorder.records = nil
		})

		It("should deactivate the grant and record the mutation", func() {
			err := service.RevokeRole(ctx, superUser, "user-a", role.ID)
			Expect(err).NotTo(HaveOccurred())

			grants, err := service.ListUserRoles(ctx, superUser, "user-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(grants).To(HaveLen(1))
			Expect(grants[0].IsActive).To(BeFalse())
			Expect(recorder.records).To(HaveLen(1))
			Expect(recorder.records[0].Action).To(Equal(audit.ActionRoleRevoked))
		})

		It("should be a no-op success for already revoked grants", func() {
			Expect(service.RevokeRole(ctx, superUser, "user-a", role.ID)).To(Succeed())
			Expect(service.RevokeRole(ctx, superUser, "user-a", role.ID)).To(Succeed())
		})
	})

	Describe("AttachPermission and DetachPermission", func() {
		var (
			role *admin.Role
			perm *admin.Permission
		)

		BeforeEach(func() {
			var err error
			role, err = service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Member"})
			Expect(err).NotTo(HaveOccurred())
			perm, err = service.CreatePermission(ctx, superUser, admin.CreatePermissionDTO{
				Name: "report.read", Resource: "report", Action: "read",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(mockRepo.CreateUser(ctx, &admin.User{ID: "user-a"})).To(Succeed())
			Expect(service.GrantRole(ctx, superUser, admin.GrantRoleDTO{UserID: "user-a", RoleID: role.ID})).To(Succeed())
			recorder.records = nil
		})

		It("should attach idempotently", func() {
			Expect(service.AttachPermission(ctx, superUser, role.ID, perm.ID)).To(Succeed())
			Expect(service.AttachPermission(ctx, superUser, role.ID, perm.ID)).To(Succeed())
		})

		It("should publish affected holders on detach", func() {
			Expect(service.AttachPermission(ctx, superUser, role.ID, perm.ID)).To(Succeed())

			var affected []string
			bus.Subscribe(events.EventTypePermissionDetached, func(_ context.Context, event events.Event) error {
				if e, ok := event.(events.RolePermissionEvent); ok {
					affected = append(affected, e.AffectedUserIDs...)
				}
				return nil
			})

			Expect(service.DetachPermission(ctx, superUser, role.ID, perm.ID)).To(Succeed())
			Expect(affected).To(ContainElement("user-a"))
		})

		It("should fail attaching to an unknown role", func() {
			err := service.AttachPermission(ctx, superUser, "ghost", perm.ID)
			Expect(err).To(MatchError(internal.ErrRoleNotFound))
		})
	})

	Describe("SeedDefaultCatalog", func() {
		It("should install the full catalog and the system roles", func() {
			Expect(service.SeedDefaultCatalog(ctx)).To(Succeed())

			Expect(mockRepo.permissions).To(HaveLen(len(admin.DefaultPermissions)))
			Expect(mockRepo.roles).To(HaveLen(len(admin.DefaultRoles)))

			superAdmin, err := mockRepo.GetRoleByName(ctx, admin.RoleSuperAdmin, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(superAdmin.IsSystemRole).To(BeTrue())
			Expect(mockRepo.links[superAdmin.ID]).To(HaveLen(len(admin.DefaultPermissions)))

			regular, err := mockRepo.GetRoleByName(ctx, admin.RoleRegularUser, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(regular.IsDefault).To(BeTrue())
		})

		It("should be idempotent", func() {
			Expect(service.SeedDefaultCatalog(ctx)).To(Succeed())
			Expect(service.SeedDefaultCatalog(ctx)).To(Succeed())

			Expect(mockRepo.permissions).To(HaveLen(len(admin.DefaultPermissions)))
			Expect(mockRepo.roles).To(HaveLen(len(admin.DefaultRoles)))
		})
	})

	Describe("RegisterUser", func() {
		BeforeEach(func() {
			Expect(service.SeedDefaultCatalog(ctx)).To(Succeed())
			recorder.records = nil
		})

		It("should create the user and auto-grant default roles", func() {
			user, err := service.RegisterUser(ctx, superUser, admin.RegisterUserDTO{
				Email: "new@example.com", Username: "new", OrganizationID: &orgA,
			})
			Expect(err).NotTo(HaveOccurred())

			grants, err := service.ListUserRoles(ctx, superUser, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(grants).To(HaveLen(1))
			Expect(grants[0].RoleName).To(Equal(admin.RoleRegularUser))
			Expect(grants[0].IsActive).To(BeTrue())
		})

		It("should reject invalid email addresses", func() {
			_, err := service.RegisterUser(ctx, superUser, admin.RegisterUserDTO{Email: "bad", Username: "new"})
			Expect(err).To(HaveOccurred())
		})

		It("should reject registration into an unknown organization", func() {
			ghost := "org-ghost"
			_, err := service.RegisterUser(ctx, superUser, admin.RegisterUserDTO{
				Email: "new@example.com", Username: "new", OrganizationID: &ghost,
			})
			Expect(err).To(MatchError(internal.ErrOrgNotFound))
		})

		It("should not keep the user when a default grant fails", func() {
			mockRepo.upsertFailError = errors.New("connection reset")
			before := len(mockRepo.users)

			_, err := service.RegisterUser(ctx, superUser, admin.RegisterUserDTO{
				Email: "new@example.com", Username: "new", OrganizationID: &orgA,
			})
			Expect(err).To(HaveOccurred())
			Expect(mockRepo.users).To(HaveLen(before))
			Expect(recorder.records).To(BeEmpty())
		})
	})

	Describe("repository failures", func() {
		It("should propagate store errors from mutations", func() {
			mockRepo.SetShouldFail(true, errors.New("connection refused"))

			_, err := service.CreateRole(ctx, superUser, admin.CreateRoleDTO{Name: "Auditor"})
			Expect(err).To(HaveOccurred())
			Expect(recorder.records).To(BeEmpty())
		})
	})
})
