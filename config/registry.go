package config

import "github.com/BaSui01/stepflow/agent/persistence"

// StoreConfig 转换为 persistence.StoreConfig
func (r RegistryConfig) StoreConfig() persistence.StoreConfig {
	return persistence.StoreConfig{
		Type:    persistence.StoreType(r.Type),
		BaseDir: r.BaseDir,
		Redis: persistence.RedisStoreConfig{
			Addr:      r.Redis.Addr,
			Password:  r.Redis.Password,
			DB:        r.Redis.DB,
			PoolSize:  r.Redis.PoolSize,
			KeyPrefix: r.Redis.KeyPrefix,
		},
		SQL: persistence.SQLStoreConfig{
			Driver: r.Database.Driver,
			DSN:    r.Database.DSN(),
			Table:  r.Database.Table,
		},
	}
}
