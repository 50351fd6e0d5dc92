package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"riskgate/internal/ensemble"
	"riskgate/internal/eval"
	"riskgate/internal/policy"
)

// Settings is the resolved runtime configuration shared by the training
// job and the serving daemon.
type Settings struct {
	DatasetPath  string
	DatasetURL   string
	ArtifactPath string
	RegistryDir  string
	DataPath     string

	Folds        int
	Seed         int64
	Calibrate    bool
	CalibBins    int
	ValFraction  float64
	TestFraction float64
	GBDT         ensemble.Params
	Oblivious    ensemble.Params

	TauLow  float64
	TauHigh float64
	Costs   policy.Costs
	Gate    eval.Gate

	ServerPort    int
	MetricsPort   int
	DashboardPort int
	FetchTimeout  time.Duration
}

// ConfigFile is the YAML layout of the configuration file.
type ConfigFile struct {
	Data struct {
		DatasetPath string `yaml:"datasetPath"`
		DatasetURL  string `yaml:"datasetURL"`
		DataPath    string `yaml:"dataPath"`
	} `yaml:"data"`

	Model struct {
		ArtifactPath string          `yaml:"artifactPath"`
		RegistryDir  string          `yaml:"registryDir"`
		NFolds       int             `yaml:"nFolds"`
		Seed         int64           `yaml:"seed"`
		Calibrate    *bool           `yaml:"calibrate"`
		CalibBins    int             `yaml:"calibBins"`
		ValFraction  float64         `yaml:"valFraction"`
		TestFraction float64         `yaml:"testFraction"`
		GBDT         ensemble.Params `yaml:"gbdt"`
		Oblivious    ensemble.Params `yaml:"oblivious"`
	} `yaml:"model"`

	Policy struct {
		TauLow  float64      `yaml:"tauLow"`
		TauHigh float64      `yaml:"tauHigh"`
		Costs   policy.Costs `yaml:"costs"`
	} `yaml:"policy"`

	Gate eval.Gate `yaml:"gate"`

	System struct {
		ServerPort    int    `yaml:"serverPort"`
		MetricsPort   int    `yaml:"metricsPort"`
		DashboardPort int    `yaml:"dashboardPort"`
		FetchTimeout  string `yaml:"fetchTimeout"`
	} `yaml:"system"`
}

// Load resolves settings from the YAML file named by CONFIG_FILE when set,
// falling back to environment variables and defaults otherwise.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(config.System.FetchTimeout)
	if err != nil {
		fetchTimeout = 30 * time.Second
	}

	calibrate := true
	if config.Model.Calibrate != nil {
		calibrate = *config.Model.Calibrate
	}

	s := Settings{
		DatasetPath:   getEnvOrDefault("DATASET_PATH", config.Data.DatasetPath),
		DatasetURL:    getEnvOrDefault("DATASET_URL", config.Data.DatasetURL),
		DataPath:      getEnvOrDefault("DATA_PATH", config.Data.DataPath),
		ArtifactPath:  getEnvOrDefault("ARTIFACT_PATH", config.Model.ArtifactPath),
		RegistryDir:   getEnvOrDefault("REGISTRY_DIR", config.Model.RegistryDir),
		Folds:         getIntFromEnvOrConfig("N_FOLDS", config.Model.NFolds),
		Seed:          int64(getIntFromEnvOrConfig("SEED", int(config.Model.Seed))),
		Calibrate:     getBoolFromEnvOrConfig("CALIBRATE", calibrate),
		CalibBins:     getIntFromEnvOrConfig("CALIB_BINS", config.Model.CalibBins),
		ValFraction:   getFloatFromEnvOrConfig("VAL_FRACTION", config.Model.ValFraction),
		TestFraction:  getFloatFromEnvOrConfig("TEST_FRACTION", config.Model.TestFraction),
		GBDT:          config.Model.GBDT,
		Oblivious:     config.Model.Oblivious,
		TauLow:        getFloatFromEnvOrConfig("TAU_LOW", config.Policy.TauLow),
		TauHigh:       getFloatFromEnvOrConfig("TAU_HIGH", config.Policy.TauHigh),
		Costs:         config.Policy.Costs,
		Gate:          config.Gate,
		ServerPort:    getIntFromEnvOrConfig("SERVER_PORT", config.System.ServerPort),
		MetricsPort:   getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		DashboardPort: getIntFromEnvOrConfig("DASHBOARD_PORT", config.System.DashboardPort),
		FetchTimeout:  fetchTimeout,
	}

	applyDefaults(&s)
	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func loadFromEnv() (Settings, error) {
	s := Settings{
		DatasetPath:   getEnvOrDefault("DATASET_PATH", "data/adult.csv"),
		DatasetURL:    os.Getenv("DATASET_URL"),
		DataPath:      os.Getenv("DATA_PATH"), // optional
		ArtifactPath:  getEnvOrDefault("ARTIFACT_PATH", "artifacts/current"),
		RegistryDir:   getEnvOrDefault("REGISTRY_DIR", "artifacts"),
		Folds:         getIntOrDefault("N_FOLDS", 5),
		Seed:          int64(getIntOrDefault("SEED", 42)),
		Calibrate:     getBoolOrDefault("CALIBRATE", true),
		CalibBins:     getIntOrDefault("CALIB_BINS", 10),
		ValFraction:   getFloatOrDefault("VAL_FRACTION", 0.15),
		TestFraction:  getFloatOrDefault("TEST_FRACTION", 0.15),
		TauLow:        getFloatOrDefault("TAU_LOW", 0.35),
		TauHigh:       getFloatOrDefault("TAU_HIGH", 0.65),
		ServerPort:    getIntOrDefault("SERVER_PORT", 8090),
		MetricsPort:   getIntOrDefault("METRICS_PORT", 8080),
		DashboardPort: getIntOrDefault("DASHBOARD_PORT", 0),
		FetchTimeout:  getDurationOrDefault("FETCH_TIMEOUT", 30*time.Second),
	}

	applyDefaults(&s)
	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func applyDefaults(s *Settings) {
	if s.Folds == 0 {
		s.Folds = 5
	}
	if s.Seed == 0 {
		s.Seed = 42
	}
	if s.CalibBins == 0 {
		s.CalibBins = 10
	}
	if s.ValFraction == 0 {
		s.ValFraction = 0.15
	}
	if s.TestFraction == 0 {
		s.TestFraction = 0.15
	}
	if s.TauLow == 0 && s.TauHigh == 0 {
		s.TauLow, s.TauHigh = 0.35, 0.65
	}
	if s.Costs == (policy.Costs{}) {
		s.Costs = policy.DefaultCosts()
	}
	if s.ServerPort == 0 {
		s.ServerPort = 8090
	}
	if s.MetricsPort == 0 {
		s.MetricsPort = 8080
	}
	if s.FetchTimeout == 0 {
		s.FetchTimeout = 30 * time.Second
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs validation of configuration values.
func validateSettings(s *Settings) error {
	if s.DatasetPath == "" {
		return fmt.Errorf("dataset path cannot be empty")
	}
	if s.ArtifactPath == "" {
		return fmt.Errorf("artifact path cannot be empty")
	}
	if s.Folds < 2 || s.Folds > 20 {
		return fmt.Errorf("fold count must be between 2 and 20, got %d", s.Folds)
	}
	if s.TauLow < 0 || s.TauHigh > 1 || s.TauLow > s.TauHigh {
		return fmt.Errorf("thresholds must satisfy 0 <= tauLow <= tauHigh <= 1, got %f and %f", s.TauLow, s.TauHigh)
	}
	if s.ValFraction <= 0 || s.ValFraction >= 0.5 {
		return fmt.Errorf("validation fraction must be between 0 and 0.5, got %f", s.ValFraction)
	}
	if s.TestFraction <= 0 || s.TestFraction >= 0.5 {
		return fmt.Errorf("test fraction must be between 0 and 0.5, got %f", s.TestFraction)
	}
	if s.CalibBins < 2 || s.CalibBins > 100 {
		return fmt.Errorf("calibration bins must be between 2 and 100, got %d", s.CalibBins)
	}
	if s.Costs.FalsePositive < 0 || s.Costs.FalseNegative < 0 || s.Costs.Abstain < 0 {
		return fmt.Errorf("decision costs must be non-negative")
	}
	if s.ServerPort < 1024 || s.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1024 and 65535, got %d", s.ServerPort)
	}
	if s.MetricsPort < 1024 || s.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", s.MetricsPort)
	}
	if s.DashboardPort != 0 && (s.DashboardPort < 1024 || s.DashboardPort > 65535) {
		return fmt.Errorf("dashboard port must be between 1024 and 65535, got %d", s.DashboardPort)
	}
	if s.FetchTimeout < time.Second || s.FetchTimeout > 5*time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 5m, got %v", s.FetchTimeout)
	}
	return nil
}
