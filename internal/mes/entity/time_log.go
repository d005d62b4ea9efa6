package entity

import "time"

// TimeLog is one interval of labor against an order or a task.
type TimeLog struct {
	ID           string      `json:"id" gorm:"primaryKey;size:36"`
	SubjectType  SubjectType `json:"subject_type" gorm:"size:10;not null;index:idx_mes_time_logs_subject"`
	SubjectID    string      `json:"subject_id" gorm:"size:36;not null;index:idx_mes_time_logs_subject"`
	Phase        Phase       `json:"phase" gorm:"size:20;not null"`
	OperatorID   string      `json:"operator_id" gorm:"size:64;not null"`
	WorkCenterID *string     `json:"work_center_id" gorm:"size:36;index"`
	StartedAt    time.Time   `json:"started_at" gorm:"not null"`
	EndedAt      *time.Time  `json:"ended_at"`
	Minutes      int         `json:"minutes" gorm:"not null;default:0"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (TimeLog) TableName() string {
	return "mes_time_logs"
}

// IsOpen reports whether the interval is still running.
func (l *TimeLog) IsOpen() bool {
	return l.EndedAt == nil
}

// ElapsedMinutes returns whole minutes between start and end, or now while open.
func (l *TimeLog) ElapsedMinutes(now time.Time) int {
	end := now
	if l.EndedAt != nil {
		end = *l.EndedAt
	}
	if end.Before(l.StartedAt) {
		return 0
	}
	return int(end.Sub(l.StartedAt) / time.Minute)
}
