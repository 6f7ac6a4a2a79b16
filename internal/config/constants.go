package config

// DefaultDatabaseURL is the default location of the application database.
// Any value that does not start with postgres:// or postgresql:// is treated
// as a SQLite file path.
const DefaultDatabaseURL = "./bookshelf.db"
