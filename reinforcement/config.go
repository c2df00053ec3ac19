package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Algorithm selectors and hyperparameter defaults.
const (
	Q_LEARNING      = "qlearning"
	VALUE_ITERATION = "value"

	DEFAULT_EPSILON        = 0.1
	DEFAULT_GAMMA          = 0.8
	DEFAULT_THRESHOLD      = 0.01
	DEFAULT_MAX_ITERATIONS = 10000
)

var ErrBadHyperParam = errors.New("hyperparameter out of range")

// OuterConfig is the file envelope: a kind tag plus the definition.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig encodes algorithmic and run parameters outside of code.
// Viper lowercases every key it reads, hence the lowercase yaml tags.
type TrainingConfig struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// Algorithm is an alg selector: {name: qlearning|value}.
	Algorithm map[string]string `yaml:"algorithm"`
	// TrainingDeadline is a duration describing when to terminate training.
	TrainingDeadline map[string]string `yaml:"trainingdeadline"`
	Run              RunConfig         `yaml:"run"`
	Report           ReportConfig      `yaml:"report"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// RunConfig describes the repeated-run driver.
type RunConfig struct {
	// Track is a path to a track file; empty selects the built-in track.
	Track   string `yaml:"track"`
	Runs    int    `yaml:"runs"`
	Workers int    `yaml:"workers"`
	Seed    int64  `yaml:"seed"`
	// TotalReset returns the vehicle to its spawn after a collision instead of the nearest open cell.
	TotalReset bool `yaml:"totalreset"`
	// Episodes is the number of consecutive episodes a single q-learner drives per run.
	Episodes int `yaml:"episodes"`
}

type ReportConfig struct {
	Xlsx  string `yaml:"xlsx"`
	Chart string `yaml:"chart"`
}

// QLearningConfig parameterizes a QLearner.
type QLearningConfig struct {
	ExplorationChance float64
	Gamma             float64
	TotalReset        bool
}

// ValueConfig parameterizes value iteration and its rollout controller.
type ValueConfig struct {
	Threshold     float64
	Gamma         float64
	MaxIterations int
	TotalReset    bool
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// SetHyperParam overwrites or appends a hyperparameter.
func (cfg *TrainingConfig) SetHyperParam(param string, val float64) {
	for i := range cfg.HyperParams {
		if cfg.HyperParams[i].Key == param {
			cfg.HyperParams[i].Val = val
			return
		}
	}
	cfg.HyperParams = append(cfg.HyperParams, HyperParameter{Key: param, Val: val})
}

// AlgorithmName returns the selected algorithm, defaulting to q-learning.
func (cfg *TrainingConfig) AlgorithmName() string {
	if name, ok := cfg.Algorithm["name"]; ok && name != "" {
		return name
	}
	return Q_LEARNING
}

// SlipChance returns the configured actuator slip probability.
func (cfg *TrainingConfig) SlipChance(defaultVal float64) (float64, error) {
	slip := cfg.GetHyperParamOrDefault("slip", defaultVal)
	if slip < 0 || slip > 1 {
		return 0, fmt.Errorf("slip %v: %w", slip, ErrBadHyperParam)
	}
	return slip, nil
}

// QLearningConfig derives and validates the q-learner parameters.
func (cfg *TrainingConfig) QLearningConfig() (QLearningConfig, error) {
	qc := QLearningConfig{
		ExplorationChance: cfg.GetHyperParamOrDefault("epsilon", DEFAULT_EPSILON),
		Gamma:             cfg.GetHyperParamOrDefault("gamma", DEFAULT_GAMMA),
		TotalReset:        cfg.Run.TotalReset,
	}
	if qc.ExplorationChance < 0 || qc.ExplorationChance > 1 {
		return qc, fmt.Errorf("epsilon %v: %w", qc.ExplorationChance, ErrBadHyperParam)
	}
	if qc.Gamma < 0 || qc.Gamma > 1 {
		return qc, fmt.Errorf("gamma %v: %w", qc.Gamma, ErrBadHyperParam)
	}
	return qc, nil
}

// ValueConfig derives and validates the value iteration parameters.
func (cfg *TrainingConfig) ValueConfig() (ValueConfig, error) {
	vc := ValueConfig{
		Threshold:     cfg.GetHyperParamOrDefault("threshold", DEFAULT_THRESHOLD),
		Gamma:         cfg.GetHyperParamOrDefault("gamma", DEFAULT_GAMMA),
		MaxIterations: int(cfg.GetHyperParamOrDefault("maxIterations", DEFAULT_MAX_ITERATIONS)),
		TotalReset:    cfg.Run.TotalReset,
	}
	if vc.Threshold <= 0 {
		return vc, fmt.Errorf("threshold %v: %w", vc.Threshold, ErrBadHyperParam)
	}
	if vc.Gamma < 0 || vc.Gamma > 1 {
		return vc, fmt.Errorf("gamma %v: %w", vc.Gamma, ErrBadHyperParam)
	}
	return vc, nil
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok && val != "" {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("training deadline: %w", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a {kind, def} yaml file and decodes its def.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return FromViper(vp)
}

// FromViper decodes the def subtree of an already populated viper instance, which
// lets callers layer defaults and bound flags beneath or over a config file.
func FromViper(vp *viper.Viper) (*TrainingConfig, error) {
	var err error
	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, fmt.Errorf("encode def: %w", err)
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, fmt.Errorf("decode def: %w", err)
	}

	return innerConfig, nil
}
