package config

import (
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// Addr returns the host:port pair for the Redis client.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type AuthConfig struct {
	APIKeys          []string `yaml:"api_keys"`
	APIKeyHeader     string   `yaml:"api_key_header"`
	JWTSecret        string   `yaml:"jwt_secret"`
	JWTAlgorithm     string   `yaml:"jwt_algorithm"`
	JWTExpireMinutes int      `yaml:"jwt_expire_minutes"`
}

type RateLimitConfig struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// ContainerConfig is the resource profile applied to every sandbox container.
// Size fields use Docker-style strings ("256m", "1g") parsed with go-units.
type ContainerConfig struct {
	Image              string `yaml:"image"`
	MemLimit           string `yaml:"mem_limit"`
	MemSwapLimit       string `yaml:"memswap_limit"`
	CPUPeriod          int64  `yaml:"cpu_period"`
	CPUQuota           int64  `yaml:"cpu_quota"`
	PidsLimit          int64  `yaml:"pids_limit"`
	TmpfsTmpSize       string `yaml:"tmpfs_tmp_size"`
	TmpfsWorkspaceSize string `yaml:"tmpfs_workspace_size"`
	UlimitNofileSoft   int64  `yaml:"ulimit_nofile_soft"`
	UlimitNofileHard   int64  `yaml:"ulimit_nofile_hard"`
	UlimitNprocSoft    int64  `yaml:"ulimit_nproc_soft"`
	UlimitNprocHard    int64  `yaml:"ulimit_nproc_hard"`
}

type ExecConfig struct {
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`
	MaxTimeoutSeconds     int `yaml:"max_timeout_seconds"`
	MaxConcurrent         int `yaml:"max_concurrent"`
}

type CleanupConfig struct {
	IntervalSeconds        int `yaml:"interval_seconds"`
	MaxContainerAgeSeconds int `yaml:"max_container_age_seconds"`
}

type WorkspaceConfig struct {
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
}

type AuditConfig struct {
	DBPath           string `yaml:"db_path"`
	RetentionSeconds int    `yaml:"retention_seconds"`
}

type Config struct {
	Listen            string          `yaml:"listen"`
	Debug             bool            `yaml:"debug"`
	Redis             RedisConfig     `yaml:"redis"`
	Auth              AuthConfig      `yaml:"auth"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	SessionTTLSeconds int             `yaml:"session_ttl_seconds"`
	Container         ContainerConfig `yaml:"container"`
	Exec              ExecConfig      `yaml:"exec"`
	Cleanup           CleanupConfig   `yaml:"cleanup"`
	Workspace         WorkspaceConfig `yaml:"workspace"`
	Audit             AuditConfig     `yaml:"audit"`
	AllowedCommands   []string        `yaml:"allowed_commands"`
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Listen: "127.0.0.1:8080",
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		Auth: AuthConfig{
			APIKeyHeader:     "X-API-Key",
			JWTSecret:        "change-me-in-production",
			JWTAlgorithm:     "HS256",
			JWTExpireMinutes: 60,
		},
		RateLimit: RateLimitConfig{
			Requests:      100,
			WindowSeconds: 60,
		},
		SessionTTLSeconds: 600,
		Container: ContainerConfig{
			Image:              "python:3.12-slim",
			MemLimit:           "256m",
			MemSwapLimit:       "256m",
			CPUPeriod:          100000,
			CPUQuota:           50000,
			PidsLimit:          50,
			TmpfsTmpSize:       "100m",
			TmpfsWorkspaceSize: "500m",
			UlimitNofileSoft:   64,
			UlimitNofileHard:   128,
			UlimitNprocSoft:    50,
			UlimitNprocHard:    100,
		},
		Exec: ExecConfig{
			DefaultTimeoutSeconds: 30,
			MaxTimeoutSeconds:     120,
			MaxConcurrent:         32,
		},
		Cleanup: CleanupConfig{
			IntervalSeconds:        60,
			MaxContainerAgeSeconds: 900,
		},
		Workspace: WorkspaceConfig{
			MaxFileSizeBytes: 1 << 20,
		},
		Audit: AuditConfig{
			DBPath:           "./sandbox-audit.db",
			RetentionSeconds: 604800,
		},
		AllowedCommands: []string{
			"ls", "cat", "echo", "pwd", "id", "whoami", "sh", "bash",
			"python", "python3", "pip", "pip3",
			"git", "curl", "wget",
			"mkdir", "cp", "mv", "rm", "grep", "find", "head", "tail",
			"sort", "uniq", "xargs", "env", "basename", "dirname",
			"test", "diff", "patch", "tar",
		},
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SANDBOX_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("SANDBOX_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("SANDBOX_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("SANDBOX_REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = n
		}
	}
	if v := os.Getenv("SANDBOX_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("SANDBOX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SANDBOX_API_KEYS"); v != "" {
		cfg.Auth.APIKeys = splitCSV(v)
	}
	if v := os.Getenv("SANDBOX_API_KEY_HEADER"); v != "" {
		cfg.Auth.APIKeyHeader = v
	}
	if v := os.Getenv("SANDBOX_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("SANDBOX_JWT_ALGORITHM"); v != "" {
		cfg.Auth.JWTAlgorithm = v
	}
	if v := os.Getenv("SANDBOX_JWT_EXPIRE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.JWTExpireMinutes = n
		}
	}
	if v := os.Getenv("SANDBOX_RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Requests = n
		}
	}
	if v := os.Getenv("SANDBOX_RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.WindowSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_SESSION_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTTLSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_CONTAINER_IMAGE"); v != "" {
		cfg.Container.Image = v
	}
	if v := os.Getenv("SANDBOX_MEM_LIMIT"); v != "" {
		cfg.Container.MemLimit = v
	}
	if v := os.Getenv("SANDBOX_MEMSWAP_LIMIT"); v != "" {
		cfg.Container.MemSwapLimit = v
	}
	if v := os.Getenv("SANDBOX_CPU_PERIOD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Container.CPUPeriod = n
		}
	}
	if v := os.Getenv("SANDBOX_CPU_QUOTA"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Container.CPUQuota = n
		}
	}
	if v := os.Getenv("SANDBOX_PIDS_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Container.PidsLimit = n
		}
	}
	if v := os.Getenv("SANDBOX_TMPFS_TMP_SIZE"); v != "" {
		cfg.Container.TmpfsTmpSize = v
	}
	if v := os.Getenv("SANDBOX_TMPFS_WORKSPACE_SIZE"); v != "" {
		cfg.Container.TmpfsWorkspaceSize = v
	}
	if v := os.Getenv("SANDBOX_ULIMIT_NOFILE_SOFT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Container.UlimitNofileSoft = n
		}
	}
	if v := os.Getenv("SANDBOX_ULIMIT_NOFILE_HARD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Container.UlimitNofileHard = n
		}
	}
	if v := os.Getenv("SANDBOX_ULIMIT_NPROC_SOFT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Container.UlimitNprocSoft = n
		}
	}
	if v := os.Getenv("SANDBOX_ULIMIT_NPROC_HARD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Container.UlimitNprocHard = n
		}
	}
	if v := os.Getenv("SANDBOX_DEFAULT_EXEC_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Exec.DefaultTimeoutSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_MAX_EXEC_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Exec.MaxTimeoutSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_MAX_CONCURRENT_EXECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Exec.MaxConcurrent = n
		}
	}
	if v := os.Getenv("SANDBOX_CLEANUP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cleanup.IntervalSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_MAX_CONTAINER_AGE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cleanup.MaxContainerAgeSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_WORKSPACE_MAX_FILE_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Workspace.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("SANDBOX_AUDIT_DB_PATH"); v != "" {
		cfg.Audit.DBPath = v
	}
	if v := os.Getenv("SANDBOX_AUDIT_RETENTION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audit.RetentionSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_ALLOWED_COMMANDS"); v != "" {
		cfg.AllowedCommands = splitCSV(v)
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
