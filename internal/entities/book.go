package entities

import (
	"math"
	"time"
)

type Book struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	AccountID  uint       `gorm:"index;not null" json:"account_id"`
	Account    Account    `gorm:"foreignKey:AccountID" json:"-"`
	Title      string     `gorm:"size:120;not null" json:"title"`
	Author     string     `gorm:"size:120;not null" json:"author"`
	Pages      int        `gorm:"not null" json:"num_pages"`
	StartedAt  time.Time  `gorm:"not null" json:"date_started"`
	FinishedAt *time.Time `json:"date_finished,omitempty"` // nil until the book is marked complete
	Complete   bool       `gorm:"not null;default:false" json:"complete"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Book) TableName() string {
	return "books"
}

// ReadingStats summarises how long a book took (or is taking) to read.
type ReadingStats struct {
	Days        int // Whole days spent, at least 1
	PagesPerDay int // Pages divided by Days, rounded
	Finished    bool
}

// Stats computes reading statistics. Unfinished books are measured up to now.
func (b *Book) Stats(now time.Time) ReadingStats {
	end := now
	if b.Complete && b.FinishedAt != nil {
		end = *b.FinishedAt
	}

	days := int(end.Sub(b.StartedAt).Hours() / 24)
	if days < 1 {
		days = 1
	}

	return ReadingStats{
		Days:        days,
		PagesPerDay: int(math.Round(float64(b.Pages) / float64(days))),
		Finished:    b.Complete,
	}
}
