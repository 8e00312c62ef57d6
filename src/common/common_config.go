package common

// CommonConfig holds the settings shared by every binary in the repo.
type CommonConfig struct {
	PostgresConfig string `yaml:"postgres"`
	RedisConfig    string `yaml:"redis"`
	PromPushURL    string `yaml:"prom_push_url"`
	LogFile        string `yaml:"log_file"`
	Debug          bool   `yaml:"debug"`
}
