package app

import (
	"errors"

	intrnl "telechat/internal"
)

// RunClient launches the Bubble Tea TUI with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	logger, closeLog, err := OpenLogFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	return intrnl.RunClient(intrnl.ClientOptions{
		JoinURL:     cfg.ServerURL,
		DisplayName: cfg.Username,
		BrowseDir:   cfg.BrowseDir,
		Logger:      logger,
	})
}
