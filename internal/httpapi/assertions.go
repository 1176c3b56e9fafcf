package httpapi

import (
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
	pgstore "github.com/tinoosan/bookkeeper/internal/storage/postgres"
	"github.com/tinoosan/bookkeeper/internal/storage/sqlite"
)

// Every storage backend must serve the full API.
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*pgstore.Store)(nil)
)
