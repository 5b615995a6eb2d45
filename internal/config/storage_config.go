package config

type StorageConfig interface {
	GetTokenStore() string
	GetRedisURL() string
	GetRedisPassword() string
	GetRedisPrefix() string
}

const (
	TokenStoreFile   = "file"
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetTokenStore() string {
	return GetEnv("TOKEN_STORE", TokenStoreFile)
}

func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisPrefix() string {
	return GetEnv("REDIS_PREFIX", "librahub:")
}
