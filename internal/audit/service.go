// Package audit records who did what to which account or book.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrlokans/bookshelf/internal/database/audit"
	"github.com/mrlokans/bookshelf/internal/entities"
)

// Actions recorded by the application.
const (
	ActionRegister      = "register"
	ActionLogin         = "login"
	ActionLoginFailed   = "login_failed"
	ActionLoginLocked   = "login_locked"
	ActionLogout        = "logout"
	ActionAccountUpdate = "account_update"
	ActionBookAdd       = "book_add"
	ActionBookUpdate    = "book_update"
	ActionBookComplete  = "book_complete"
	ActionBookDelete    = "book_delete"
)

const asyncTimeout = 5 * time.Second

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	logger  *logrus.Logger
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository, logger *logrus.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Log records a generic audit event.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking).
// The write is detached from any request context.
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()

		if err := s.repo.LogEvent(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"account_id": event.AccountID,
				"action":     event.Action,
			}).Error("Failed to log audit event")
		}
	}()
}

// Wait blocks until every pending asynchronous write has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(accountID uint, action, ipAddr string, success bool) {
	event := &entities.AuditEvent{
		AccountID:  accountID,
		EventType:  entities.AuditEventAuth,
		Action:     action,
		EntityType: "account",
		IPAddress:  ipAddr,
		Status:     entities.AuditStatusSuccess,
	}
	if accountID != 0 {
		event.EntityID = &accountID
	}
	if !success {
		event.Status = entities.AuditStatusFailed
	}

	s.LogAsync(event)
}

// LogAccount records a change to an account's own profile.
func (s *Service) LogAccount(accountID uint, action, description string) {
	s.LogAsync(&entities.AuditEvent{
		AccountID:   accountID,
		EventType:   entities.AuditEventAccount,
		Action:      action,
		Description: truncate(description, 500),
		EntityType:  "account",
		EntityID:    &accountID,
		Status:      entities.AuditStatusSuccess,
	})
}

// LogBook records a change to a book made by its owner.
func (s *Service) LogBook(accountID uint, action string, bookID uint, title string) {
	s.LogAsync(&entities.AuditEvent{
		AccountID:   accountID,
		EventType:   entities.AuditEventBook,
		Action:      action,
		Description: truncate(bookDescription(action, title), 500),
		EntityType:  "book",
		EntityID:    &bookID,
		Status:      entities.AuditStatusSuccess,
	})
}

// RecentActivity returns the latest events for an account.
func (s *Service) RecentActivity(ctx context.Context, accountID uint, limit int) ([]entities.AuditEvent, error) {
	return s.repo.GetEvents(ctx, accountID, limit)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func bookDescription(action, title string) string {
	switch action {
	case ActionBookAdd:
		return fmt.Sprintf("Added %q", title)
	case ActionBookUpdate:
		return fmt.Sprintf("Updated %q", title)
	case ActionBookComplete:
		return fmt.Sprintf("Finished %q", title)
	case ActionBookDelete:
		return fmt.Sprintf("Deleted %q", title)
	default:
		return title
	}
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
