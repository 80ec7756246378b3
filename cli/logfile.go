package cli

import (
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/pccrop/logging"
)

const (
	logFileKey = "logFile"

	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
)

// openLogFile sets up the rotating --log-file shared by every logger of the invocation. Sub
// command apps share the root's metadata.
func openLogFile(c *cli.Context) error {
	path := c.String(generalFlagLogFile)
	if path == "" {
		return nil
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[logFileKey] = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
	}
	return nil
}

func closeLogFile(c *cli.Context) error {
	if f, ok := c.App.Metadata[logFileKey].(*lumberjack.Logger); ok {
		return f.Close()
	}
	return nil
}

// addLogFileAppender makes logger also write to the --log-file, if any.
func addLogFileAppender(c *cli.Context, logger logging.Logger) {
	if f, ok := c.App.Metadata[logFileKey].(*lumberjack.Logger); ok {
		logger.AddAppender(logging.NewWriterAppender(f))
	}
}
