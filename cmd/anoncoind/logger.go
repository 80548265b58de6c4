// logger.go - Subsystem loggers, log rotation and the audit log.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"anoncoin/internal/ledger"
	"anoncoin/internal/sigma"
	"anoncoin/internal/spark"
)

// logWriter writes to stdout and, once the rotator is running, to the log
// file.
type logWriter struct {
	rotatorPipe *io.PipeWriter
}

func (w *logWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	if w.rotatorPipe != nil {
		w.rotatorPipe.Write(b)
	}
	return len(b), nil
}

// A single backend feeds every subsystem logger. Nothing is written to the
// log file before initLogRotator runs.
var (
	writer     = &logWriter{}
	backendLog = btclog.NewBackend(writer)
	logRotator *rotator.Rotator

	ancdLog = backendLog.Logger("ANCD")
	srvrLog = backendLog.Logger("SRVR")
	ldgrLog = backendLog.Logger(ledger.Subsystem)
	sigmLog = backendLog.Logger(sigma.Subsystem)
	sprkLog = backendLog.Logger(spark.Subsystem)
)

func init() {
	ledger.UseLogger(ldgrLog)
	sigma.UseLogger(sigmLog)
	spark.UseLogger(sprkLog)
}

// subsystemLoggers maps each subsystem identifier to its logger.
var subsystemLoggers = map[string]btclog.Logger{
	"ANCD":           ancdLog,
	"SRVR":           srvrLog,
	ledger.Subsystem: ldgrLog,
	sigma.Subsystem:  sigmLog,
	spark.Subsystem:  sprkLog,
}

// newRotator starts a rotator fed through a pipe. done is closed once
// everything written to the pipe before it was closed has reached the file.
func newRotator(logFile string, maxSizeKB, maxFiles int) (*rotator.Rotator, *io.PipeWriter, <-chan struct{}, error) {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(logFile, int64(maxSizeKB), false, maxFiles)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(pr); err != nil && err != io.EOF {
			fmt.Fprintf(os.Stderr, "failed to run file rotator: %v\n", err)
		}
	}()
	return r, pw, done, nil
}

// initLogRotator starts writing logs to logFile, rolling it over in the
// same directory.
func initLogRotator(logFile string, maxSizeKB, maxFiles int) error {
	r, pw, _, err := newRotator(logFile, maxSizeKB, maxFiles)
	if err != nil {
		return err
	}
	writer.rotatorPipe = pw
	logRotator = r
	return nil
}

// setLogLevels parses either a single level for every subsystem, or a
// comma separated list of SUBSYSTEM=level pairs.
func setLogLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, "=") {
		level, ok := btclog.LevelFromString(debugLevel)
		if !ok {
			return fmt.Errorf("invalid log level %q", debugLevel)
		}
		for _, logger := range subsystemLoggers {
			logger.SetLevel(level)
		}
		return nil
	}
	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.SplitN(pair, "=", 2)
		if len(fields) != 2 {
			return fmt.Errorf("invalid subsystem level %q", pair)
		}
		logger, ok := subsystemLoggers[fields[0]]
		if !ok {
			return fmt.Errorf("unknown subsystem %q, known: %s", fields[0],
				strings.Join(supportedSubsystems(), " "))
		}
		level, ok := btclog.LevelFromString(fields[1])
		if !ok {
			return fmt.Errorf("invalid log level %q", fields[1])
		}
		logger.SetLevel(level)
	}
	return nil
}

func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for s := range subsystemLoggers {
		subsystems = append(subsystems, s)
	}
	sort.Strings(subsystems)
	return subsystems
}

// AuditLog records security relevant events in their own rotated file.
// A nil AuditLog discards records.
type AuditLog struct {
	rot  *rotator.Rotator
	pipe *io.PipeWriter
	done <-chan struct{}
	log  btclog.Logger
}

func NewAuditLog(path string, maxSizeKB, maxFiles int) (*AuditLog, error) {
	r, pw, done, err := newRotator(path, maxSizeKB, maxFiles)
	if err != nil {
		return nil, err
	}
	logger := btclog.NewBackend(pw).Logger("AUDT")
	logger.SetLevel(btclog.LevelInfo)
	return &AuditLog{rot: r, pipe: pw, done: done, log: logger}, nil
}

// Record logs an audit event
func (a *AuditLog) Record(event string, details map[string]interface{}) {
	if a == nil {
		return
	}
	a.log.Infof("AUDIT: %s - %+v", event, details)
}

// Close closes the audit file
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	a.pipe.Close()
	<-a.done
	return a.rot.Close()
}
