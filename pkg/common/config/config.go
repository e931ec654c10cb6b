package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	// Layout
	BaseDir    string
	SourceDir  string
	RulesPath  string
	ColumnDoc  string
	SQLitePath string

	// Schema normalizer
	Workers      int
	PreambleRows int

	// Day-boundary rule: clock times before this hour belong to the
	// previous care day.
	DayBoundaryHour int

	// Outcome thresholds (mmol/L)
	HypoThreshold  float64
	HyperThreshold float64

	// Final artifacts
	ThreeClassFile  string
	BinaryFile      string
	MissingnessFile string
}

func Load() *Config {
	base := getEnv("PIPELINE_BASE_DIR", ".")
	return &Config{
		BaseDir:    base,
		SourceDir:  getEnv("PIPELINE_SOURCE_DIR", filepath.Join(base, "raw")),
		RulesPath:  getEnv("PIPELINE_RULES_PATH", ""),
		ColumnDoc:  getEnv("PIPELINE_COLUMN_DOC", filepath.Join(base, "docs", "column_conventions.txt")),
		SQLitePath: getEnv("PIPELINE_SQLITE_PATH", ""),

		// at least one worker: errgroup never schedules at limit 0
		Workers:      clampMin(getIntEnv("PIPELINE_WORKERS", 8), 1),
		PreambleRows: getIntEnv("PIPELINE_PREAMBLE_ROWS", 2),

		DayBoundaryHour: getIntEnv("PIPELINE_DAY_BOUNDARY_HOUR", 8),

		HypoThreshold:  getFloatEnv("PIPELINE_HYPO_THRESHOLD", 3.9),
		HyperThreshold: getFloatEnv("PIPELINE_HYPER_THRESHOLD", 13.9),

		ThreeClassFile:  getEnv("PIPELINE_THREE_CLASS_FILE", filepath.Join(base, "daily_three_class.csv")),
		BinaryFile:      getEnv("PIPELINE_BINARY_FILE", filepath.Join(base, "daily_hypo_binary.csv")),
		MissingnessFile: getEnv("PIPELINE_MISSINGNESS_FILE", filepath.Join(base, "missingness_report.csv")),
	}
}

// CohortDir is where a cohort's canonical domain tables live.
func (c *Config) CohortDir(cohort string) string {
	return filepath.Join(c.BaseDir, cohort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
