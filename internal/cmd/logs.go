package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log/v2"
	"github.com/nxadm/tail"
	"github.com/spf13/cobra"
)

const defaultTailLines = 1000

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("tail", "t", defaultTailLines, "Show only the last N lines")
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View mirror logs",
	Long:  `View the logs written by mirror. This command lets you monitor the cache activity and debug issues.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		tailLines, _ := cmd.Flags().GetInt("tail")

		cfg, _, err := setup(cmd)
		if err != nil {
			return err
		}

		logsFile := cfg.Options.LogFile
		if _, err := os.Stat(logsFile); os.IsNotExist(err) {
			log.Warn("Looks like you are not in a mirror project. No logs found.")
			return nil
		}

		logger := log.New(cmd.OutOrStdout())
		logger.SetLevel(log.DebugLevel)
		logger.SetReportTimestamp(true)

		if follow {
			return followLogs(cmd, logger, logsFile, tailLines)
		}
		return showLogs(logger, logsFile, tailLines)
	},
}

func followLogs(cmd *cobra.Command, logger *log.Logger, logsFile string, tailLines int) error {
	if err := showLogs(logger, logsFile, tailLines); err != nil {
		return err
	}

	t, err := tail.TailFile(logsFile, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %v", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-cmd.Context().Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				continue
			}
			printLogLine(logger, line.Text)
		}
	}
}

func showLogs(logger *log.Logger, logsFile string, tailLines int) error {
	f, err := os.Open(logsFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if tailLines > 0 && len(lines) > tailLines {
			lines = slices.Delete(lines, 0, 1)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log file: %v", err)
	}

	for _, line := range lines {
		printLogLine(logger, line)
	}
	return nil
}

// printLogLine reprints a JSON line of the log file with the terminal logger.
func printLogLine(logger *log.Logger, line string) {
	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return
	}
	msg, _ := data["msg"].(string)
	level, _ := data["level"].(string)

	var kv []any
	for k, v := range data {
		switch k {
		case "msg", "level", "time":
			continue
		case "source":
			if src, ok := v.(map[string]any); ok {
				kv = append(kv, k, fmt.Sprintf("%v:%v", src["file"], src["line"]))
			}
			continue
		}
		kv = append(kv, k, v)
	}

	if ts, ok := data["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			logger.SetTimeFunction(func(time.Time) time.Time { return t })
		}
	}

	switch level {
	case "INFO":
		logger.Info(msg, kv...)
	case "DEBUG":
		logger.Debug(msg, kv...)
	case "WARN":
		logger.Warn(msg, kv...)
	case "ERROR":
		logger.Error(msg, kv...)
	default:
		logger.Print(msg, kv...)
	}
}
