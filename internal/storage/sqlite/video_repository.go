package sqlite

import (
	"database/sql"
)

// VideoRepository combines the read and write sides over the same database.
type VideoRepository struct {
	*VideoReadRepository
	*VideoWriteRepository
}

func NewVideoRepository(dbConn *sql.DB) *VideoRepository {
	return &VideoRepository{
		VideoReadRepository:  NewVideoReadRepository(dbConn),
		VideoWriteRepository: NewVideoWriteRepository(dbConn),
	}
}
