// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logs wires up the per-subsystem loggers shared by every package
// in povnoded. Logger output is discarded until InitLogRotators has been
// called with a log file.
package logs

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// SubsystemTags enumerates the tags used to create subsystem loggers.
var SubsystemTags = struct {
	NODE,
	CHST,
	CNSS,
	MMPL,
	MINR,
	PEER,
	SYNC,
	UTXO,
	CNFG string
}{
	NODE: "NODE",
	CHST: "CHST",
	CNSS: "CNSS",
	MMPL: "MMPL",
	MINR: "MINR",
	PEER: "PEER",
	SYNC: "SYNC",
	UTXO: "UTXO",
	CNFG: "CNFG",
}

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	if initiated {
		os.Stdout.Write(p)
		if LogRotator != nil {
			LogRotator.Write(p)
		}
	}
	return len(p), nil
}

var (
	backend   = btclog.NewBackend(logWriter{})
	initiated = false

	// LogRotator is the on-disk rotation target initialized by
	// InitLogRotators. It is nil until then, and nothing is logged before
	// that call.
	LogRotator *rotator.Rotator

	subsystemLoggers = make(map[string]btclog.Logger)
)

// Get returns (creating if necessary) the logger for the given subsystem
// tag.
func Get(tag string) btclog.Logger {
	if log, ok := subsystemLoggers[tag]; ok {
		return log
	}
	log := backend.Logger(tag)
	subsystemLoggers[tag] = log
	return log
}

// InitLogRotators initializes disk-backed rotation of the log file at
// logFile. It must be called once, early during process startup, before any
// subsystem logger writes are expected to reach disk.
func InitLogRotators(logFile string) error {
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	LogRotator = r
	initiated = true
	return nil
}

// SetLevel sets the log level for every known subsystem logger.
func SetLevel(level btclog.Level) {
	for _, log := range subsystemLoggers {
		log.SetLevel(level)
	}
}
