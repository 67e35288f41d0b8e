// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/lighthouse-io/lighthoused/backend"
	"github.com/lighthouse-io/lighthoused/chain"
	"github.com/lighthouse-io/lighthoused/claim"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/pledgewallet"
	"github.com/lighthouse-io/lighthoused/scheduler"
	"github.com/lighthouse-io/lighthoused/server"
	"github.com/lighthouse-io/lighthoused/store"
	"github.com/lighthouse-io/lighthoused/utxo"
	"github.com/lighthouse-io/lighthoused/verify"
)

// logWriter implements io.Writer and writes to both standard output and
// the log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	logRotator.Write(p)
	return len(p), nil
}

// logRotator is one of the log rotators used to log output to files. It
// must be a package-level variable since log outputs are set by the
// backend loggers dynamically at runtime, and this variable is needed to
// be initialized early when the logging subsystem is initialized.
var logRotator *rotator.Rotator

// Loggers per subsystem. Note that backendLog is a btclog.Backend that all
// of the subsystem loggers route their messages to. When adding new
// subsystems, add a reference here, to the subsystemLoggers map, and the
// useLogger function.
var (
	backendLog = btclog.NewBackend(logWriter{})

	logPldg = backendLog.Logger("PLDG")
	logPwlt = backendLog.Logger("PWLT")
	logSchd = backendLog.Logger("SCHD")
	logStor = backendLog.Logger("STOR")
	logVrfy = backendLog.Logger("VRFY")
	logChns = backendLog.Logger("CHNS")
	logUtxo = backendLog.Logger("UTXO")
	logClam = backendLog.Logger("CLAM")
	logSrvc = backendLog.Logger("SRVC")
	logBknd = backendLog.Logger("BKND")
	log     = backendLog.Logger("LTHD")
)

// subsystemLoggers maps each subsystem identifier to its associated
// logger, and is used to allow the caller to set log levels by subsystem.
var subsystemLoggers = map[string]btclog.Logger{
	"PLDG": logPldg,
	"PWLT": logPwlt,
	"SCHD": logSchd,
	"STOR": logStor,
	"VRFY": logVrfy,
	"CHNS": logChns,
	"UTXO": logUtxo,
	"CLAM": logClam,
	"SRVC": logSrvc,
	"BKND": logBknd,
	"LTHD": log,
}

// initLogRotator initializes the logging rotator to write logs to logFile
// and creates the parent directory if it doesn't already exist.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}

	logRotator = r
}

// useLogger updates the logger references for subsystemID to logger and
// wires it into every package that owns that subsystem. Invalid
// subsystems are ignored.
func useLogger(subsystemID string, logger btclog.Logger) {
	if _, ok := subsystemLoggers[subsystemID]; !ok {
		return
	}
	subsystemLoggers[subsystemID] = logger

	switch subsystemID {
	case "PLDG":
		pledge.UseLogger(logger)
	case "PWLT":
		pledgewallet.UseLogger(logger)
	case "SCHD":
		scheduler.UseLogger(logger)
	case "STOR":
		store.UseLogger(logger)
	case "VRFY":
		verify.UseLogger(logger)
	case "CHNS":
		chain.UseLogger(logger)
	case "UTXO":
		utxo.UseLogger(logger)
	case "CLAM":
		claim.UseLogger(logger)
	case "SRVC":
		server.UseLogger(logger)
	case "BKND":
		backend.UseLogger(logger)
	}
}

// setLogLevel sets the logging level for the provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
	useLogger(subsystemID, logger)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level. It also dynamically creates the subsystem loggers as needed, so
// it can be used to initialize the logging system.
func setLogLevels(logLevel string) {
	for subsysID := range subsystemLoggers {
		setLogLevel(subsysID, logLevel)
	}
}
