// Package core defines the shared language of LeapData.
//
// This package contains:
//   - Data source descriptors (DataSourceConfig, NamedDataSource)
//   - Adapter connection settings (AdapterConfig)
//   - Configuration and resolution errors
//
// The Golden Rule: pkg/core imports ONLY pkg/secret and stdlib.
// All other packages depend on core, not the reverse.
package core
