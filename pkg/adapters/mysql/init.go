// Package mysql provides a MySQL/MariaDB data source kind for LeapData.
//
// This file registers the MySQL adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapdata/pkg/adapters/mysql"
package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
)

func init() {
	adapter.Register(Kind, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
