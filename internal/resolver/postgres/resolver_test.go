package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/frahmantamala/authz/internal/core/datamodel/rbac"
	"github.com/frahmantamala/authz/internal/resolver"
	resolverPostgres "github.com/frahmantamala/authz/internal/resolver/postgres"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestResolverPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Resolver Postgres Suite")
}

var _ = Describe("Resolver PostgreSQL Repository", func() {
	var (
		db   *gorm.DB
		repo resolver.RepositoryAPI
		ctx  context.Context
	)

	orgA := "org-a"
	orgB := "org-b"

	createUser := func(id string, organizationID *string, active bool) {
		user := rbac.User{
			ID:             id,
			Email:          id + "@example.com",
			Username:       id,
			IsActive:       active,
			OrganizationID: organizationID,
		}
		Expect(db.Create(&user).Error).NotTo(HaveOccurred())
	}

	createRole := func(id, name string, systemRole bool) {
		role := rbac.Role{ID: id, Name: name, IsSystemRole: systemRole}
		Expect(db.Create(&role).Error).NotTo(HaveOccurred())
	}

	createPermission := func(id, resource, action string) {
		perm := rbac.Permission{
			ID:       id,
			Name:     resource + "." + action,
			Resource: resource,
			Action:   action,
		}
		Expect(db.Create(&perm).Error).NotTo(HaveOccurred())
	}

	attach := func(roleID, permissionID string) {
		link := rbac.RolePermissionLink{ID: uuid.NewString(), RoleID: roleID, PermissionID: permissionID}
		Expect(db.Create(&link).Error).NotTo(HaveOccurred())
	}

	grant := func(userID, roleID string, active bool, expiresAt *time.Time) {
		g := rbac.UserRoleGrant{
			ID:        uuid.NewString(),
			UserID:    userID,
			RoleID:    roleID,
			IsActive:  active,
			ExpiresAt: expiresAt,
		}
		Expect(db.Create(&g).Error).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(
			&rbac.Organization{},
			&rbac.User{},
			&rbac.Role{},
			&rbac.Permission{},
			&rbac.UserRoleGrant{},
			&rbac.RolePermissionLink{},
		)
		Expect(err).NotTo(HaveOccurred())

		repo = resolverPostgres.NewResolverRepository(db)
		ctx = context.Background()
	})

	Describe("ResolveSnapshot", func() {
		It("should return the zero snapshot for unknown users", func() {
			snap, err := repo.ResolveSnapshot(ctx, "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.UserActive).To(BeFalse())
			Expect(snap.Permissions).To(BeEmpty())
		})

		It("should return the zero snapshot for deactivated users", func() {
			createUser("user-1", &orgA, false)
			createRole("role-1", "Member", false)
			createPermission("perm-1", "knowledge_base", "read")
			attach("role-1", "perm-1")
			grant("user-1", "role-1", true, nil)

			snap, err := repo.ResolveSnapshot(ctx, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.UserActive).To(BeFalse())
			Expect(snap.Permissions).To(BeEmpty())
		})

		It("should resolve the union of permissions across roles", func() {
			createUser("user-1", &orgA, true)
			createRole("role-1", "Reader", false)
			createRole("role-2", "Writer", false)
			createPermission("perm-1", "knowledge_base", "read")
			createPermission("perm-2", "knowledge_base", "update")
			attach("role-1", "perm-1")
			attach("role-2", "perm-1")
			attach("role-2", "perm-2")
			grant("user-1", "role-1", true, nil)
			grant("user-1", "role-2", true, nil)

			snap, err := repo.ResolveSnapshot(ctx, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.UserActive).To(BeTrue())
			// perm-1 reachable via both roles still appears once
			Expect(snap.Permissions).To(HaveLen(2))
			Expect(snap.HasPair("knowledge_base", "read")).To(BeTrue())
			Expect(snap.HasPair("knowledge_base", "update")).To(BeTrue())
		})

		It("should exclude revoked grants", func() {
			createUser("user-1", &orgA, true)
			createRole("role-1", "Reader", false)
			createPermission("perm-1", "knowledge_base", "read")
			attach("role-1", "perm-1")
			grant("user-1", "role-1", false, nil)

			snap, err := repo.ResolveSnapshot(ctx, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Permissions).To(BeEmpty())
		})

		It("should exclude expired grants without any cleanup job", func() {
			createUser("user-1", &orgA, true)
			createRole("role-1", "Reader", false)
			createPermission("perm-1", "knowledge_base", "read")
			attach("role-1", "perm-1")

			past := time.Now().Add(-time.Second)
			grant("user-1", "role-1", true, &past)

			snap, err := repo.ResolveSnapshot(ctx, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Permissions).To(BeEmpty())
		})

		It("should include grants that expire in the future", func() {
			createUser("user-1", &orgA, true)
			createRole("role-1", "Reader", false)
			createPermission("perm-1", "knowledge_base", "read")
			attach("role-1", "perm-1")

			future := time.Now().Add(time.Hour)
			grant("user-1", "role-1", true, &future)

			snap, err := repo.ResolveSnapshot(ctx, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.HasPair("knowledge_base", "read")).To(BeTrue())
		})

		It("should flag effective system roles", func() {
			createUser("user-1", &orgA, true)
			createRole("role-1", "Super Admin", true)
			grant("user-1", "role-1", true, nil)

			snap, err := repo.ResolveSnapshot(ctx, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.HasSystemRole).To(BeTrue())
		})

		It("should not flag system roles held only through expired grants", func() {
			createUser("user-1", &orgA, true)
			createRole("role-1", "Super Admin", true)
			past := time.Now().Add(-time.Minute)
			grant("user-1", "role-1", true, &past)

			snap, err := repo.ResolveSnapshot(ctx, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.HasSystemRole).To(BeFalse())
		})
	})

	Describe("HasPermission", func() {
		BeforeEach(func() {
			createUser("user-1", &orgA, true)
			createRole("role-1", "Reader", false)
			createPermission("perm-1", "knowledge_base", "read")
			attach("role-1", "perm-1")
			grant("user-1", "role-1", true, nil)
		})

		It("should pass without an organization context", func() {
			held, err := repo.HasPermission(ctx, "user-1", "knowledge_base", "read", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeTrue())
		})

		It("should pass when the organization context matches the user's", func() {
			held, err := repo.HasPermission(ctx, "user-1", "knowledge_base", "read", &orgA)
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeTrue())
		})

		It("should deny when the organization context differs", func() {
			held, err := repo.HasPermission(ctx, "user-1", "knowledge_base", "read", &orgB)
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeFalse())
		})

		It("should let a system role bypass organization scoping", func() {
			createRole("role-sys", "Super Admin", true)
			grant("user-1", "role-sys", true, nil)

			held, err := repo.HasPermission(ctx, "user-1", "knowledge_base", "read", &orgB)
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeTrue())
		})

		It("should deny pairs the user does not hold", func() {
			held, err := repo.HasPermission(ctx, "user-1", "knowledge_base", "delete", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeFalse())
		})

		It("should deny unknown users", func() {
			held, err := repo.HasPermission(ctx, "nobody", "knowledge_base", "read", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeFalse())
		})

		It("should deny immediately after the grant is revoked", func() {
			Expect(db.Model(&rbac.UserRoleGrant{}).
				Where("user_id = ? AND role_id = ?", "user-1", "role-1").
				Update("is_active", false).Error).NotTo(HaveOccurred())

			held, err := repo.HasPermission(ctx, "user-1", "knowledge_base", "read", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeFalse())
		})
	})
})
