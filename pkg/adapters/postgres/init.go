// Package postgres provides a PostgreSQL data source kind for LeapData.
//
// This file registers the PostgreSQL adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapdata/pkg/adapters/postgres"
package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
)

func init() {
	adapter.Register(Kind, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
