package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/internal/repository"
)

// memoryCurriculumStore mimics the curricula tables, including unique and
// foreign key constraints, and rolls back writes when a transaction fails.
type memoryCurriculumStore struct {
	curricula map[int64]models.Curriculum
	subjects  map[int64][]models.CurriculumSubject
	students  map[int64][]models.CurriculumStudent
	nextID    int64

	subjectNames map[int64]string
	teacherNames map[int64]string
	studentNames map[int64]string

	failInsertSubject error
	txCount           int
}

func newMemoryCurriculumStore() *memoryCurriculumStore {
	return &memoryCurriculumStore{
		curricula:    map[int64]models.Curriculum{},
		subjects:     map[int64][]models.CurriculumSubject{},
		students:     map[int64][]models.CurriculumStudent{},
		subjectNames: map[int64]string{1: "Mathematics", 2: "English", 3: "Science"},
		teacherNames: map[int64]string{5: "Maria Santos", 6: "Jose Rizal", 7: "Andres Bonifacio"},
		studentNames: map[int64]string{10: "Ana Cruz", 11: "Ben Reyes", 12: "Carla Diaz"},
	}
}

func (m *memoryCurriculumStore) List(ctx context.Context) ([]models.Curriculum, error) {
	out := make([]models.Curriculum, 0, len(m.curricula))
	for _, c := range m.curricula {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memoryCurriculumStore) ListByTeacher(ctx context.Context, teacherID int64) ([]models.Curriculum, error) {
	all, _ := m.List(ctx)
	var out []models.Curriculum
	for _, c := range all {
		if ok, _ := m.IsTeacherAssigned(ctx, c.ID, teacherID); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryCurriculumStore) FindByID(ctx context.Context, id int64) (*models.Curriculum, error) {
	c, ok := m.curricula[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (m *memoryCurriculumStore) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	for id, c := range m.curricula {
		if c.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryCurriculumStore) IsTeacherAssigned(ctx context.Context, curriculumID, teacherID int64) (bool, error) {
	for _, row := range m.subjects[curriculumID] {
		if row.TeacherID == teacherID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryCurriculumStore) ListSubjects(ctx context.Context, ids []int64) ([]models.CurriculumSubjectDetail, error) {
	var out []models.CurriculumSubjectDetail
	for _, id := range ids {
		for _, row := range m.subjects[id] {
			out = append(out, models.CurriculumSubjectDetail{
				CurriculumID: id,
				SubjectID:    row.SubjectID,
				SubjectCode:  fmt.Sprintf("SUBJ%d", row.SubjectID),
				SubjectName:  m.subjectNames[row.SubjectID],
				TeacherID:    row.TeacherID,
				TeacherName:  m.teacherNames[row.TeacherID],
				AssignedAt:   row.AssignedAt,
			})
		}
	}
	return out, nil
}

func (m *memoryCurriculumStore) ListStudents(ctx context.Context, ids []int64) ([]models.CurriculumStudentDetail, error) {
	var out []models.CurriculumStudentDetail
	for _, id := range ids {
		for _, row := range m.students[id] {
			out = append(out, models.CurriculumStudentDetail{
				CurriculumID: id,
				StudentID:    row.StudentID,
				StudentName:  m.studentNames[row.StudentID],
				GradeLevel:   7,
				EnrolledAt:   row.EnrolledAt,
			})
		}
	}
	return out, nil
}

func (m *memoryCurriculumStore) WithinTx(ctx context.Context, fn func(repository.CurriculumWriter) error) error {
	m.txCount++
	snapshot := m.clone()
	if err := fn(&memoryCurriculumWriter{store: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *memoryCurriculumStore) clone() *memoryCurriculumStore {
	cp := &memoryCurriculumStore{
		curricula: map[int64]models.Curriculum{},
		subjects:  map[int64][]models.CurriculumSubject{},
		students:  map[int64][]models.CurriculumStudent{},
		nextID:    m.nextID,
	}
	for k, v := range m.curricula {
		cp.curricula[k] = v
	}
	for k, v := range m.subjects {
		cp.subjects[k] = append([]models.CurriculumSubject(nil), v...)
	}
	for k, v := range m.students {
		cp.students[k] = append([]models.CurriculumStudent(nil), v...)
	}
	return cp
}

func (m *memoryCurriculumStore) restore(snapshot *memoryCurriculumStore) {
	m.curricula = snapshot.curricula
	m.subjects = snapshot.subjects
	m.students = snapshot.students
	m.nextID = snapshot.nextID
}

type memoryCurriculumWriter struct {
	store *memoryCurriculumStore
}

func uniqueViolation(constraint string) error {
	return fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: constraint})
}

func foreignKeyViolation(constraint string) error {
	return fmt.Errorf("insert: %w", &pq.Error{Code: "23503", Constraint: constraint})
}

func (w *memoryCurriculumWriter) Insert(ctx context.Context, c *models.Curriculum) error {
	for _, existing := range w.store.curricula {
		if existing.Code == c.Code {
			return uniqueViolation("curricula_code_key")
		}
	}
	w.store.nextID++
	c.ID = w.store.nextID
	stored := *c
	stored.Subjects, stored.Students = nil, nil
	w.store.curricula[c.ID] = stored
	return nil
}

func (w *memoryCurriculumWriter) Update(ctx context.Context, c *models.Curriculum) error {
	for id, existing := range w.store.curricula {
		if existing.Code == c.Code && id != c.ID {
			return uniqueViolation("curricula_code_key")
		}
	}
	stored := *c
	stored.Subjects, stored.Students = nil, nil
	w.store.curricula[c.ID] = stored
	return nil
}

func (w *memoryCurriculumWriter) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := w.store.curricula[id]; !ok {
		return false, nil
	}
	delete(w.store.curricula, id)
	return true, nil
}

func (w *memoryCurriculumWriter) DeleteSubjects(ctx context.Context, curriculumID int64) error {
	delete(w.store.subjects, curriculumID)
	return nil
}

func (w *memoryCurriculumWriter) InsertSubject(ctx context.Context, row models.CurriculumSubject) error {
	if w.store.failInsertSubject != nil {
		return w.store.failInsertSubject
	}
	if _, ok := w.store.subjectNames[row.SubjectID]; !ok {
		return foreignKeyViolation("curriculum_subjects_subject_id_fkey")
	}
	if _, ok := w.store.teacherNames[row.TeacherID]; !ok {
		return foreignKeyViolation("curriculum_subjects_teacher_id_fkey")
	}
	for _, existing := range w.store.subjects[row.CurriculumID] {
		if existing.SubjectID == row.SubjectID {
			return uniqueViolation("curriculum_subjects_pair_key")
		}
	}
	w.store.subjects[row.CurriculumID] = append(w.store.subjects[row.CurriculumID], row)
	return nil
}

func (w *memoryCurriculumWriter) DeleteStudents(ctx context.Context, curriculumID int64) error {
	delete(w.store.students, curriculumID)
	return nil
}

func (w *memoryCurriculumWriter) InsertStudent(ctx context.Context, row models.CurriculumStudent) error {
	if _, ok := w.store.studentNames[row.StudentID]; !ok {
		return foreignKeyViolation("curriculum_students_student_id_fkey")
	}
	for _, existing := range w.store.students[row.CurriculumID] {
		if existing.StudentID == row.StudentID {
			return uniqueViolation("curriculum_students_pair_key")
		}
	}
	w.store.students[row.CurriculumID] = append(w.store.students[row.CurriculumID], row)
	return nil
}

// activeSet answers ActiveIDs from a fixed set of active ids.
type activeSet map[int64]bool

func (a activeSet) ActiveIDs(ctx context.Context, ids []int64) ([]int64, error) {
	out := []int64{}
	for _, id := range ids {
		if a[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
