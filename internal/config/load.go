package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "METRONOME"

// EnvConfigPath — переменная окружения с путём к файлу конфигурации.
const EnvConfigPath = EnvPrefix + "_CONFIG"

// NewViper создаёт viper с defaults и привязкой к окружению.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// Load читает конфигурацию.
//
// path пустой — берётся METRONOME_CONFIG; если и он пуст, конфиг
// собирается только из defaults и окружения. Формат файла
// определяется по расширению (.yaml, .toml, .json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Mark(
				errors.Wrapf(err, "read config file %s", path),
				ErrInvalidConfig,
			)
		}
	}

	return LoadWithViper(v, path)
}

// LoadWithViper собирает Config из подготовленного viper.
func LoadWithViper(v *viper.Viper, path string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "unmarshal config"), ErrInvalidConfig)
	}

	cfg.path = path
	if cfg.InstanceID == "" {
		cfg.InstanceID = DefaultInstanceID()
	}
	return &cfg, nil
}
