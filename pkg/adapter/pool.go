package adapter

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// PoolParams tunes the database/sql pool of a data source.
// Parsed from Config.Params; unknown keys are ignored.
type PoolParams struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ParsePoolParams decodes pool settings from adapter params.
// Durations accept Go duration strings ("30s", "5m").
func ParsePoolParams(params map[string]any) (PoolParams, error) {
	var p PoolParams
	if len(params) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(params); err != nil {
		return p, fmt.Errorf("invalid pool params: %w", err)
	}
	return p, nil
}

// ApplyPoolParams applies the pool settings found in params to db.
// Zero values keep the database/sql defaults.
func ApplyPoolParams(db *sql.DB, params map[string]any) error {
	p, err := ParsePoolParams(params)
	if err != nil {
		return err
	}
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
	if p.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	}
	return nil
}
