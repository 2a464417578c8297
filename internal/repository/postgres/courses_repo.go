package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

type coursesRepo struct{ pool *pgxpool.Pool }

func (r *coursesRepo) GetByID(ctx context.Context, id string) (models.Course, error) {
	var c models.Course
	err := r.pool.QueryRow(ctx, `
SELECT id, title, slug, price, currency, status, is_free, total_enrollments, created_at
  FROM courses
 WHERE id=$1`,
		id,
	).Scan(&c.ID, &c.Title, &c.Slug, &c.Price, &c.Currency, &c.Status, &c.IsFree,
		&c.TotalEnrollments, &c.CreatedAt)
	return c, err
}

func (r *coursesRepo) IncrementEnrollments(ctx context.Context, tx pgx.Tx, courseID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE courses SET total_enrollments = total_enrollments + 1 WHERE id=$1`,
		courseID,
	)
	return err
}

type enrollmentsRepo struct{ pool *pgxpool.Pool }

func (r *enrollmentsRepo) ActiveExists(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS(
  SELECT 1 FROM enrollments WHERE student_id=$1 AND course_id=$2 AND status=$3
)`,
		studentID, courseID, models.EnrollmentActive,
	).Scan(&exists)
	return exists, err
}

func (r *enrollmentsRepo) Create(ctx context.Context, tx pgx.Tx, e models.Enrollment) (models.Enrollment, bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	tag, err := tx.Exec(ctx, `
INSERT INTO enrollments (id, student_id, course_id, status)
VALUES ($1,$2,$3,$4)
ON CONFLICT (student_id, course_id) DO NOTHING`,
		e.ID, e.StudentID, e.CourseID, e.Status,
	)
	if err != nil {
		return models.Enrollment{}, false, err
	}
	if tag.RowsAffected() == 0 {
		// already enrolled; return the existing row
		err = tx.QueryRow(ctx, `
SELECT id, student_id, course_id, status, created_at
  FROM enrollments
 WHERE student_id=$1 AND course_id=$2`,
			e.StudentID, e.CourseID,
		).Scan(&e.ID, &e.StudentID, &e.CourseID, &e.Status, &e.CreatedAt)
		return e, false, err
	}
	return e, true, nil
}
