// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (SQLite or Postgres), migrations
//	├── accounts/        # Account lookups, creation, profile updates
//	├── books/           # Book CRUD with ownership checks
//	└── audit/           # Audit event storage and retention
//
// # Backends
//
// DATABASE_URL selects the backend. Values starting with postgres:// or
// postgresql:// go through gorm's postgres dialect on top of lib/pq;
// anything else is a SQLite file path opened with foreign keys enforced.
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase(cfg.Database.URL, logger)
//
//	accountsRepo := accounts.NewRepository(db.DB)
//	booksRepo := books.NewRepository(db.DB)
//
//	shelf, err := booksRepo.ListForAccount(ctx, accountID)
//
// # Transactions
//
// Every mutating repository method runs in a single gorm transaction, so an
// ownership check and the write it guards commit or fail together.
package database
