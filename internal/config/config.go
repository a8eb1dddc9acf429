package config

type Config interface {
	EnvConfig
	SessionConfig
	OAuthConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetBackendURL() string
	GetProvidersFile() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
	OAuth
}

func New() Config {
	return mainConfig{}
}
