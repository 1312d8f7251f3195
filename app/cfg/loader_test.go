package cfg

import (
	"testing"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestConfigFields(t *testing.T) {
	cfg := &Cfg{
		Port:              "8080",
		UserAgent:         "Test Agent",
		WorkerCount:       5,
		SchedulerInterval: 30,
		RefreshInterval:   3600,
		APIAccessKey:      "test-key",
		Version:           "test-version",
		SeedsFile:         "./seeds.yml",
		SeedsUser:         "admin",
		DBHost:            "localhost",
		DBPort:            "5432",
		DBUser:            "test_user",
		DBPassword:        "test_password",
		DBName:            "test_db",
		Timezone:          "UTC",
		Debug:             true,
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", cfg.Port)
	}
	if cfg.WorkerCount != 5 {
		t.Errorf("Expected worker count 5, got %d", cfg.WorkerCount)
	}
	if cfg.RefreshInterval != 3600 {
		t.Errorf("Expected refresh interval 3600, got %d", cfg.RefreshInterval)
	}
	if cfg.SeedsFile != "./seeds.yml" {
		t.Errorf("Expected seeds file './seeds.yml', got '%s'", cfg.SeedsFile)
	}
	if cfg.SeedsUser != "admin" {
		t.Errorf("Expected seeds user 'admin', got '%s'", cfg.SeedsUser)
	}
	if !cfg.Debug {
		t.Error("Expected debug to be enabled")
	}
}

func TestSetForTesting(t *testing.T) {
	prev := globalCfg
	defer func() { globalCfg = prev }()

	SetForTesting(&Cfg{Port: "9090"})
	if Get().Port != "9090" {
		t.Errorf("Expected port '9090', got '%s'", Get().Port)
	}
}
