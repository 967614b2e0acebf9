package config

const (
	EnvPrefix = "orderly"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ORDERLY_DB_DSN"
	EnvDBHost = "ORDERLY_DB_HOST"
	EnvDBUser = "ORDERLY_DB_USER"
	EnvDBName = "ORDERLY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
