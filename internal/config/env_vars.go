package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	folderEnvVar  = "FOLDER"
	backendURLVar = "BACKEND_URL"
	providersVar  = "PROVIDERS_FILE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" || port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "SecureView Auth")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

// GetBackendURL returns the base URL of the external data API that hosts
// the authenticate/refresh/verify/logout endpoints
func (EnvVars) GetBackendURL() string {
	return GetEnv(backendURLVar, "http://localhost:9090")
}

// GetProvidersFile returns the path of the YAML provider registry
func (EnvVars) GetProvidersFile() string {
	return GetEnv(providersVar, "./providers.yaml")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
