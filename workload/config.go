package workload

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/Konsultn-Engineering/stormweaver/action"
)

// Params configures one workload run.
type Params struct {
	DurationInSeconds    int              `json:"duration_in_seconds" yaml:"duration_in_seconds" mapstructure:"duration_in_seconds"`
	RepeatTimes          int              `json:"repeat_times" yaml:"repeat_times" mapstructure:"repeat_times"`
	NumberOfWorkers      int              `json:"number_of_workers" yaml:"number_of_workers" mapstructure:"number_of_workers"`
	MaxReconnectAttempts int              `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts" mapstructure:"max_reconnect_attempts"`
	Seed                 uint64           `json:"seed,omitempty" yaml:"seed,omitempty" mapstructure:"seed"`
	ActionConfig         action.AllConfig `json:"action_config" yaml:"action_config" mapstructure:"action_config"`
}

// DefaultParams returns the standard run parameters.
func DefaultParams() Params {
	return Params{
		DurationInSeconds:    60,
		RepeatTimes:          10,
		NumberOfWorkers:      5,
		MaxReconnectAttempts: 5,
		ActionConfig:         action.DefaultConfig(),
	}
}

// LoadParams reads a YAML params file; unset fields keep their defaults.
func LoadParams(path string) (Params, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return Params{}, fmt.Errorf("read params: %w", err)
	}

	params := DefaultParams()
	if err := v.Unmarshal(&params); err != nil {
		return Params{}, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}
