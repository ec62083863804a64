package history

import (
	"context"
	"fmt"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.History) (ports.HistoryStore, error) {
	switch cfg.Driver {
	case config.HistorySQLite:
		return OpenSQLite(ctx, cfg.Path)
	case config.HistoryPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	case config.HistoryNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}

// Nop discards records.
type Nop struct{}

func (Nop) Record(context.Context, types.HistoryEntry) error        { return nil }
func (Nop) List(context.Context, int) ([]types.HistoryEntry, error) { return nil, nil }
func (Nop) Close() error                                            { return nil }
