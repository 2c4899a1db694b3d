// internal/config/config.go
package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		DevicePort   int `mapstructure:"device_port"`
		ObserverPort int `mapstructure:"observer_port"`
	} `mapstructure:"server"`
	Auth struct {
		DriftWindowSeconds int            `mapstructure:"drift_window_seconds"`
		JWTSecret          string         `mapstructure:"jwt_secret"`
		JWTExpiration      int            `mapstructure:"jwt_expiration"` // minutes
		Users              []ObserverUser `mapstructure:"users"`
	} `mapstructure:"auth"`
	Telemetry struct {
		Tolerance        float64 `mapstructure:"tolerance"`          // percentage points
		FloatSwitchLevel float64 `mapstructure:"float_switch_level"` // switch mounting level, percent
	} `mapstructure:"telemetry"`
	Tanks struct {
		TopCapacityLiters  float64 `mapstructure:"top_capacity_liters"`
		SumpCapacityLiters float64 `mapstructure:"sump_capacity_liters"`
	} `mapstructure:"tanks"`
	Motor struct {
		LowThreshold      float64 `mapstructure:"low_threshold"`
		RefillThreshold   float64 `mapstructure:"refill_threshold"`
		HighThreshold     float64 `mapstructure:"high_threshold"`
		SafetyFloor       float64 `mapstructure:"safety_floor"`
		OverflowThreshold float64 `mapstructure:"overflow_threshold"`
		CooldownSeconds   int     `mapstructure:"cooldown_seconds"`
		MaxRuntimeMinutes int     `mapstructure:"max_runtime_minutes"`
		MinRestMinutes    int     `mapstructure:"min_rest_minutes"`
	} `mapstructure:"motor"`
	Presence struct {
		IntervalSeconds     int `mapstructure:"interval_seconds"`
		OfflineAfterSeconds int `mapstructure:"offline_after_seconds"`
	} `mapstructure:"presence"`
	Command struct {
		RetryTimeoutSeconds int `mapstructure:"retry_timeout_seconds"`
		ExpireAfterMinutes  int `mapstructure:"expire_after_minutes"`
		MaxPending          int `mapstructure:"max_pending"` // 0 = unbounded
	} `mapstructure:"command"`
	Storage struct {
		Path           string `mapstructure:"path"`
		WriteTimeoutMS int    `mapstructure:"write_timeout_ms"`
	} `mapstructure:"storage"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

type ObserverUser struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

var AppConfig Config

func LoadConfig(path string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.SetEnvPrefix("tankguard")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		logrus.WithError(err).Warn("config file not read, using defaults")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return err
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.device_port", 8080)
	viper.SetDefault("server.observer_port", 8081)

	viper.SetDefault("auth.drift_window_seconds", 300)
	viper.SetDefault("auth.jwt_expiration", 60)

	viper.SetDefault("telemetry.tolerance", 10.0)
	viper.SetDefault("telemetry.float_switch_level", 85.0)

	viper.SetDefault("tanks.top_capacity_liters", 1000.0)
	viper.SetDefault("tanks.sump_capacity_liters", 1322.5)

	viper.SetDefault("motor.low_threshold", 20.0)
	viper.SetDefault("motor.refill_threshold", 30.0)
	viper.SetDefault("motor.high_threshold", 90.0)
	viper.SetDefault("motor.safety_floor", 20.0)
	viper.SetDefault("motor.overflow_threshold", 90.0)
	viper.SetDefault("motor.cooldown_seconds", 10)
	viper.SetDefault("motor.max_runtime_minutes", 30)
	viper.SetDefault("motor.min_rest_minutes", 5)

	viper.SetDefault("presence.interval_seconds", 30)
	viper.SetDefault("presence.offline_after_seconds", 90)

	viper.SetDefault("command.retry_timeout_seconds", 60)
	viper.SetDefault("command.expire_after_minutes", 15)
	viper.SetDefault("command.max_pending", 0)

	viper.SetDefault("storage.path", "data/tankguard.db")
	viper.SetDefault("storage.write_timeout_ms", 2000)

	viper.SetDefault("log.level", "info")
}
