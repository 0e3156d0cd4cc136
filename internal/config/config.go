// Package config handles loading and managing mudex configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/wesm/mudex/internal/fileutil"
)

// Config represents the mudex configuration.
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Mu        MuConfig        `toml:"mu"`
	Folders   FoldersConfig   `toml:"folders"`
	Display   DisplayConfig   `toml:"display"`
	Colors    ColorsConfig    `toml:"colors"`
	Threading ThreadingConfig `toml:"threading"`
	Sync      SyncConfig      `toml:"sync"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// GeneralConfig holds query and engine settings.
type GeneralConfig struct {
	MaxMessages    int  `toml:"max_messages"`    // Maximum results per query
	SortDescending bool `toml:"sort_descending"` // Newest first
	UndoDepth      int  `toml:"undo_depth"`      // Entries kept for undo (1 = single level)
	Workers        int  `toml:"workers"`         // Concurrent index service invocations
}

// MuConfig describes how to reach the mu index service.
type MuConfig struct {
	Binary    string `toml:"binary"`     // mu executable, looked up on PATH
	MuHome    string `toml:"muhome"`     // Passed as --muhome when set
	Maildir   string `toml:"maildir"`    // Root maildir; discovered via `mu info` when empty
	LazyIndex bool   `toml:"lazy_index"` // Pass --lazy-check to `mu index`
}

// FoldersConfig maps well-known folders to maildir names.
type FoldersConfig struct {
	Inbox   string `toml:"inbox"`
	Archive string `toml:"archive"`
	Drafts  string `toml:"drafts"`
	Sent    string `toml:"sent"`
	Trash   string `toml:"trash"`
}

// DisplayConfig controls the index list columns.
type DisplayConfig struct {
	DateFormat      string `toml:"date_format"`       // Go layout for older messages
	ShortDateFormat string `toml:"short_date_format"` // Go layout for this year
	TimeFormat      string `toml:"time_format"`       // Go layout for today
	DateWidth       int    `toml:"date_width"`
	FromWidth       int    `toml:"from_width"`
	FlagsWidth      int    `toml:"flags_width"`

	FlagUnread    string `toml:"flag_unread"`
	FlagReplied   string `toml:"flag_replied"`
	FlagForwarded string `toml:"flag_forwarded"`
	FlagImportant string `toml:"flag_important"`
	FlagAttach    string `toml:"flag_attachment"`
	FlagEncrypted string `toml:"flag_encrypted"`
	FlagSigned    string `toml:"flag_signed"`
}

// ColorsConfig holds lipgloss color values for row styles.
type ColorsConfig struct {
	Unread    string `toml:"unread"`
	Important string `toml:"important"`
	Marked    string `toml:"marked"` // "reverse" or a color
}

// ThreadingConfig controls threaded display.
type ThreadingConfig struct {
	Enabled   bool   `toml:"enabled"`
	Indicator string `toml:"indicator"`
}

// SyncConfig configures the external synchronization command.
type SyncConfig struct {
	Command  string `toml:"command"`  // Shell command, e.g. "mbsync -a"
	Schedule string `toml:"schedule"` // Cron expression; empty disables scheduled sync
	Reindex  bool   `toml:"reindex"`  // Run `mu index` after a successful sync
}

// DefaultHome returns the default mudex home directory.
// Respects MUDEX_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MUDEX_HOME"); h != "" {
		return expandPath(h)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".mudex"
	}
	return filepath.Join(dir, "mudex")
}

// Default returns a configuration populated with defaults.
func Default(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		General: GeneralConfig{
			MaxMessages:    400,
			SortDescending: true,
			UndoDepth:      1,
			Workers:        1,
		},
		Mu: MuConfig{
			Binary:    "mu",
			LazyIndex: true,
		},
		Folders: FoldersConfig{
			Inbox:   "/INBOX",
			Archive: "/Archive",
			Drafts:  "/Drafts",
			Sent:    "/Sent",
			Trash:   "/Trash",
		},
		Display: DisplayConfig{
			DateFormat:      "2006-01-02 15:04",
			ShortDateFormat: "01/02",
			TimeFormat:      "15:04",
			DateWidth:       12,
			FromWidth:       20,
			FlagsWidth:      6,
			FlagUnread:      "●",
			FlagReplied:     "↩",
			FlagForwarded:   "→",
			FlagImportant:   "⚑",
			FlagAttach:      "📎",
			FlagEncrypted:   "🔒",
			FlagSigned:      "✓",
		},
		Colors: ColorsConfig{
			Unread:    "4",
			Important: "208",
			Marked:    "reverse",
		},
		Threading: ThreadingConfig{
			Enabled:   true,
			Indicator: "↳",
		},
		Sync: SyncConfig{
			Command: "mbsync -a",
			Reindex: true,
		},
	}
}

// Load reads the configuration from the specified file.
// If homeDir is empty, DefaultHome is used. If path is empty, the config
// is read from <home>/config.toml. A missing file yields defaults.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	homeDir = expandPath(homeDir)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}
	path = expandPath(path)

	cfg := Default(homeDir)
	cfg.configPath = path

	// Config file is optional unless named explicitly
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Mu.MuHome = expandPath(cfg.Mu.MuHome)
	cfg.Mu.Maildir = expandPath(cfg.Mu.Maildir)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize fixes values a user can reasonably leave out.
func (c *Config) normalize() {
	for _, f := range []*string{
		&c.Folders.Inbox, &c.Folders.Archive, &c.Folders.Drafts,
		&c.Folders.Sent, &c.Folders.Trash,
	} {
		*f = NormalizeFolder(*f)
	}
	if c.General.UndoDepth <= 0 {
		c.General.UndoDepth = 1
	}
	if c.General.Workers <= 0 {
		c.General.Workers = 1
	}
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.General.MaxMessages < 0 {
		return fmt.Errorf("general.max_messages must not be negative (got %d)", c.General.MaxMessages)
	}
	if c.Folders.Archive == c.Folders.Inbox {
		return fmt.Errorf("folders.archive and folders.inbox must differ (both %q)", c.Folders.Inbox)
	}
	if c.Folders.Trash == "" || c.Folders.Archive == "" {
		return fmt.Errorf("folders.archive and folders.trash are required")
	}
	return nil
}

// NormalizeFolder returns the folder with exactly one leading slash and no
// trailing slash. The empty string is returned unchanged.
func NormalizeFolder(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return "/" + strings.Trim(name, "/")
}

// ConfigFilePath returns the path of the config file that was (or would be) loaded.
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// LogFilePath returns the path of the TUI log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.HomeDir, "mudex.log")
}

// EnsureHomeDir creates the home directory with owner-only permissions.
func (c *Config) EnsureHomeDir() error {
	return fileutil.SecureMkdirAll(c.HomeDir, 0700)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
