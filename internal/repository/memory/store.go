// Package memory implements the repository contracts in process memory. It
// backs STORE_DRIVER=memory and the concurrency tests.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/elective-api/internal/models"
)

type enrollment struct {
	seq        int64
	courseID   string
	studentID  string
	enrolledAt time.Time
}

// Store holds every table behind one data mutex. Batch transitions and seat
// claims additionally coordinate through a keyed read/write lock per batch.
type Store struct {
	mu          sync.Mutex
	students    map[string]models.Student
	courses     map[string]models.Course
	enrollments []enrollment
	seq         int64
	admins      map[string]models.Admin
	audit       []models.AuditLog
	outbox      map[string]models.OutboxMessage

	batches *keyedLock
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		students: make(map[string]models.Student),
		courses:  make(map[string]models.Course),
		admins:   make(map[string]models.Admin),
		outbox:   make(map[string]models.OutboxMessage),
		batches:  newKeyedLock(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Students returns the student table view.
func (s *Store) Students() *StudentStore { return &StudentStore{s: s} }

// Courses returns the course table view.
func (s *Store) Courses() *CourseStore { return &CourseStore{s: s} }

// Seats returns the seat allocator view.
func (s *Store) Seats() *SeatStore { return &SeatStore{s: s} }

// Promotions returns the batch transition view.
func (s *Store) Promotions() *PromotionStore { return &PromotionStore{s: s} }

// Outbox returns the notification outbox view.
func (s *Store) Outbox() *OutboxStore { return &OutboxStore{s: s} }

// Audit returns the audit log view.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// Admins returns the admin account view.
func (s *Store) Admins() *AdminStore { return &AdminStore{s: s} }

// Reconcile returns the consistency sweep view.
func (s *Store) Reconcile() *ReconcileStore { return &ReconcileStore{s: s} }

// countLocked returns the number of seats held in a course. Callers hold s.mu.
func (s *Store) countLocked(courseID string) int {
	n := 0
	for _, e := range s.enrollments {
		if e.courseID == courseID {
			n++
		}
	}
	return n
}

func (s *Store) withCount(c models.Course) models.Course {
	c.EnrolledCount = s.countLocked(c.ID)
	return c
}

func (s *Store) rosterLocked(courseID string) []models.RosterEntry {
	roster := []models.RosterEntry{}
	for _, e := range s.enrollments {
		if e.courseID != courseID {
			continue
		}
		st := s.students[e.studentID]
		roster = append(roster, models.RosterEntry{
			Position:   len(roster) + 1,
			StudentID:  st.ID,
			Name:       st.Name,
			RollNumber: st.RollNumber,
			Year:       st.Year,
			Semester:   st.Semester,
			Batch:      st.Batch,
			EnrolledAt: e.enrolledAt,
		})
	}
	return roster
}

func (s *Store) countsLocked(ids []string) []models.CourseCount {
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	counts := make([]models.CourseCount, 0, len(sorted))
	for _, id := range sorted {
		c, ok := s.courses[id]
		if !ok {
			continue
		}
		counts = append(counts, models.CourseCount{CourseID: id, EnrolledCount: s.countLocked(id), Capacity: c.Capacity})
	}
	return counts
}

// removeEnrollmentsLocked drops every enrollment for which drop is true and
// returns the distinct affected course ids and the number of rows removed.
func (s *Store) removeEnrollmentsLocked(drop func(enrollment) bool) ([]string, int) {
	kept := s.enrollments[:0]
	seen := map[string]struct{}{}
	var courses []string
	removed := 0
	for _, e := range s.enrollments {
		if drop(e) {
			removed++
			if _, ok := seen[e.courseID]; !ok {
				seen[e.courseID] = struct{}{}
				courses = append(courses, e.courseID)
			}
			continue
		}
		kept = append(kept, e)
	}
	s.enrollments = kept
	sort.Strings(courses)
	return courses, removed
}

func (s *Store) enrollmentFor(studentID string) (enrollment, bool) {
	for _, e := range s.enrollments {
		if e.studentID == studentID {
			return e, true
		}
	}
	return enrollment{}, false
}

func paginate[T any](items []T, page, size int) []T {
	page, size = models.NormalizePage(page, size)
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func descending(order string) bool {
	return strings.ToUpper(order) != "ASC"
}

// keyedLock hands out one RWMutex per key.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*sync.RWMutex)}
}

func (k *keyedLock) get(key string) *sync.RWMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		k.locks[key] = l
	}
	return l
}
