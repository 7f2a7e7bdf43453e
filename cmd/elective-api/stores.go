package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-api/internal/models"
	"github.com/noah-isme/elective-api/internal/repository"
	"github.com/noah-isme/elective-api/internal/repository/memory"
)

type studentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByRollNumber(ctx context.Context, roll string) (*models.Student, error)
	ExistsByRollNumber(ctx context.Context, roll string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student, releaseSeat bool) (*string, error)
	Delete(ctx context.Context, id string) (*string, error)
	ListBatches(ctx context.Context) ([]string, error)
}

type courseStore interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	Roster(ctx context.Context, courseID string) ([]models.RosterEntry, error)
	Counts(ctx context.Context, ids []string) ([]models.CourseCount, error)
}

type seatStore interface {
	ClaimSeat(ctx context.Context, studentID, courseID string) (*models.SeatClaim, error)
}

type promotionStore interface {
	SetSemester(ctx context.Context, batch string, semester int, year *int) (*models.PromotionResult, error)
	PromoteNext(ctx context.Context, batch string) (*models.PromotionResult, error)
}

type outboxStore interface {
	FindByID(ctx context.Context, id string) (*models.OutboxMessage, error)
	ListPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	RecordAttempt(ctx context.Context, id string, lastErr string) error
	MarkSent(ctx context.Context, id string) error
	MarkSkipped(ctx context.Context, id string, reason string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

type auditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

type adminStore interface {
	FindByUsername(ctx context.Context, username string) (*models.Admin, error)
	Create(ctx context.Context, admin *models.Admin) error
}

type reconcileStore interface {
	FindDanglingEnrollments(ctx context.Context) ([]models.EnrollmentRef, error)
	FindDanglingReferences(ctx context.Context) ([]models.EnrollmentRef, error)
	FindOverCapacity(ctx context.Context) ([]models.CourseCount, error)
	AttachReference(ctx context.Context, studentID, courseID string) (bool, error)
	RemoveEnrollment(ctx context.Context, studentID, courseID string) error
	ClearReference(ctx context.Context, studentID, courseID string) error
}

// stores groups the persistence backends selected by STORE_DRIVER.
type stores struct {
	students   studentStore
	courses    courseStore
	seats      seatStore
	promotions promotionStore
	outbox     outboxStore
	audit      auditStore
	admins     adminStore
	reconcile  reconcileStore
}

func postgresStores(db *sqlx.DB) stores {
	return stores{
		students:   repository.NewStudentRepository(db),
		courses:    repository.NewCourseRepository(db),
		seats:      repository.NewSeatRepository(db),
		promotions: repository.NewPromotionRepository(db),
		outbox:     repository.NewOutboxRepository(db),
		audit:      repository.NewAuditRepository(db),
		admins:     repository.NewAdminRepository(db),
		reconcile:  repository.NewReconcileRepository(db),
	}
}

func memoryStores() stores {
	store := memory.NewStore()
	return stores{
		students:   store.Students(),
		courses:    store.Courses(),
		seats:      store.Seats(),
		promotions: store.Promotions(),
		outbox:     store.Outbox(),
		audit:      store.Audit(),
		admins:     store.Admins(),
		reconcile:  store.Reconcile(),
	}
}
