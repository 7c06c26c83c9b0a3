package repository

import (
	"context"
	"fmt"

	"mealshare-backend/database"
)

// AttendanceRepository reads RSVPs written by the event workflow.
type AttendanceRepository interface {
	GetGoingUserIDs(ctx context.Context, eventID string) ([]string, error)
}

type attendanceRepository struct {
	db *database.DB
}

func NewAttendanceRepository(db *database.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) GetGoingUserIDs(ctx context.Context, eventID string) ([]string, error) {
	query := `SELECT user_id FROM event_attendance WHERE event_id = $1 AND status = 'going' ORDER BY user_id`

	rows, err := r.db.Pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("getting going attendees: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning attendee: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
