package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hitoshi/verifybot/internal/config"
	"github.com/hitoshi/verifybot/internal/database"
	"github.com/hitoshi/verifybot/internal/repository"
)

// openStore は設定に従って会員台帳を開く。返り値のclose関数で後始末する。
func openStore(cfg *config.Config) (repository.MemberRepository, func() error, error) {
	switch cfg.RecordStore {
	case config.StorePostgres:
		db, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("record store opened", slog.String("store", string(cfg.RecordStore)))
		return repository.NewPostgresMemberRepo(db), db.Close, nil

	case config.StoreMemory:
		slog.Warn("in-memory record store selected; registrations are lost on restart")
		return repository.NewMemoryMemberRepo(), noopClose, nil

	default:
		repo, err := repository.OpenWorkbookMemberRepo(cfg.WorkbookPath, cfg.WorkbookSheet)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
		}
		slog.Info("record store opened",
			slog.String("store", string(config.StoreWorkbook)),
			slog.String("path", cfg.WorkbookPath),
			slog.String("sheet", cfg.WorkbookSheet),
		)
		return repo, noopClose, nil
	}
}

// openDB はDB接続を開き疎通を確認する。
func openDB(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

func noopClose() error { return nil }
