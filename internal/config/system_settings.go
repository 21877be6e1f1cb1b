package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

const DATABASE_TYPE = "FINPILOT_DATABASE_TYPE"
const DATABASE_URL = "FINPILOT_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "FINPILOT_DATABASE_SQLLITE_FILE_NAME"
const SERVER_WEB_PORT = "FINPILOT_SERVER_WEB_PORT"
const CONFIG_FILE = "FINPILOT_CONFIG_FILE"

const SCHEDULER_INTERVAL = "FINPILOT_SCHEDULER_INTERVAL"       //how often the due-scan runs
const SCHEDULER_WORKER_SIZE = "FINPILOT_SCHEDULER_WORKER_SIZE" //parallel job runners
const SCHEDULER_QUEUE_SIZE = "FINPILOT_SCHEDULER_QUEUE_SIZE"   //dispatch channel depth
const EXECUTION_HISTORY_LIMIT = "FINPILOT_EXECUTION_HISTORY_LIMIT"
const EVENT_REPLAY_BUFFER_SIZE = "FINPILOT_EVENT_REPLAY_BUFFER_SIZE"

const GATEWAY_BASE_URL = "FINPILOT_GATEWAY_BASE_URL"
const GATEWAY_INTEGRATION_ID = "FINPILOT_GATEWAY_INTEGRATION_ID"
const GATEWAY_INTEGRATION_KEY = "FINPILOT_GATEWAY_INTEGRATION_KEY"

const BOOTSTRAP_USERNAME = "FINPILOT_BOOTSTRAP_USERNAME"
const BOOTSTRAP_PASSWORD = "FINPILOT_BOOTSTRAP_PASSWORD"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

var (
	fileOnce     sync.Once
	fileSettings map[string]string
)

// loadFileSettings reads the optional yaml settings file once. Keys in the
// file use the same names as the env vars; env always wins.
func loadFileSettings() {
	fileOnce.Do(func() {
		fileSettings = map[string]string{}
		path := os.Getenv(CONFIG_FILE)
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read config file", "path", path, "error", err)
			return
		}
		if err := yaml.Unmarshal(data, &fileSettings); err != nil {
			slog.Error("Failed to parse config file", "path", path, "error", err)
			fileSettings = map[string]string{}
		}
	})
}

func GetSystemSettingInteger(settingKey string) int {
	val := GetSystemSettingString(settingKey)
	if val != "" {
		intValue, _ := strconv.Atoi(val)
		return intValue
	}
	return 0
}

func GetSystemSettingString(settingKey string) string {
	val := os.Getenv(settingKey)
	if val != "" {
		return val
	}
	loadFileSettings()
	if v, ok := fileSettings[settingKey]; ok && v != "" {
		return v
	}
	if settingKey == SCHEDULER_INTERVAL {
		return "60s" // default to 60 seconds
	}
	if settingKey == SCHEDULER_WORKER_SIZE {
		return "5"
	}
	if settingKey == SCHEDULER_QUEUE_SIZE {
		return "20"
	}
	if settingKey == EXECUTION_HISTORY_LIMIT {
		return "200" // terminal executions kept per workflow store
	}
	if settingKey == EVENT_REPLAY_BUFFER_SIZE {
		return "500"
	}
	if settingKey == SERVER_WEB_PORT {
		return "8080"
	}
	if settingKey == DATABASE_SQLLITE_FILE_NAME {
		return "./finpilot.db"
	}
	if settingKey == BOOTSTRAP_USERNAME {
		return "admin"
	}
	return ""
}
