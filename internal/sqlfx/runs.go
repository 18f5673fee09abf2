package sqlfx

import (
	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/archiver/pkg/http/handler"
	"github.com/yurykabanov/archiver/pkg/logexport"
	"github.com/yurykabanov/archiver/pkg/storage"
)

func RunRepository(db *sqlx.DB) (
	*storage.RunRepository,
	handler.RunRepository,
	logexport.WindowRecorder,
) {
	repo := storage.NewRunRepository(db)

	return repo, repo, repo
}
