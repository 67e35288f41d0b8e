// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	flags "github.com/jessevdk/go-flags"
	"github.com/lighthouse-io/lighthoused/internal/cfgutil"
)

const (
	defaultConfigFilename = "lighthoused.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "lighthoused.log"
	defaultMode           = "client"

	defaultMinPeersForUTXOQuery = 2
	regtestMinPeersForUTXOQuery = 1
	defaultMaxJitterSeconds     = 30
	regtestMaxJitterSeconds     = 1
	defaultUTXOQueryDeadline  = 10 * time.Second
	defaultDependencyDeadline = 30 * time.Second
	defaultHTTPTimeout        = 15 * time.Second
)

var (
	lighthoudHomeDir  = btcutil.AppDataDir("lighthoused", false)
	defaultConfigFile = filepath.Join(lighthoudHomeDir, defaultConfigFilename)
	defaultDataDir    = lighthoudHomeDir
	defaultLogDir     = filepath.Join(lighthoudHomeDir, defaultLogDirname)
)

// config defines the configuration options for lighthoused.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the neutrino SPV database when no rpcconnect peer is configured"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- Alternatively, level specifications of the form <subsystem>=<level>,<subsystem2>=<level2>,... can be used to set the log level for individual subsystems"`

	TestNet bool `long:"testnet" description:"Use the test network"`
	RegTest bool `long:"regtest" description:"Use the regression test network"`
	SimNet  bool `long:"simnet" description:"Use the simulation test network"`

	Mode string `long:"mode" description:"Operating mode: client (trust a project server or the P2P network) or server (host projects and index them by URL path)" choice:"client" choice:"server"`

	RPCConnect string `long:"rpcconnect" description:"Full node JSON-RPC host:port to use as a UTXO oracle (btcd/bitcoind -rpc)"`
	RPCUser    string `long:"rpcuser" description:"Username for full node RPC authentication"`
	RPCPass    string `long:"rpcpass" default-mask:"-" description:"Password for full node RPC authentication"`
	RPCCert    string `long:"rpccert" description:"File containing the full node's RPC certificate"`
	NoRPCTLS   bool   `long:"norpctls" description:"Disable TLS for the full node RPC connection -- only allowed when connecting to localhost"`

	ConnectPeers []string `long:"addpeer" description:"Additional P2P peer(s) to connect to for UTXO queries; may be specified multiple times"`

	MinPeersForUTXOQuery int `long:"minpeers" description:"Minimum number of GetUTXOs-capable peers a verification round waits for"`
	MaxJitterSeconds     int `long:"maxjitter" description:"Maximum random delay, in seconds, added before a scheduled re-verification"`

	UTXOQueryDeadline           time.Duration       `long:"utxoquerytimeout" description:"Deadline for one UTXO verification round"`
	DependencyBroadcastDeadline time.Duration       `long:"dependencybroadcasttimeout" description:"Per-transaction deadline broadcasting a pledge's dependency transactions"`
	HTTPTimeout                 time.Duration       `long:"httptimeout" description:"Deadline for a single project-server status fetch"`
	RelayFeePerKB               *cfgutil.AmountFlag `long:"relayfee" description:"The minimum transaction fee in BTC/kB to use when assembling claim transactions"`
}

// netParams pairs a chaincfg.Params with the P2P port lighthoused defaults
// to when none is specified on the command line, mirroring the
// per-network connect-port grouping the teacher's params.go uses.
type netParams struct {
	*chaincfg.Params
	p2pPort string
}

var activeNet = &mainNetParams

var (
	mainNetParams = netParams{Params: &chaincfg.MainNetParams, p2pPort: "8333"}
	testNetParams = netParams{Params: &chaincfg.TestNet3Params, p2pPort: "18333"}
	regTestParams = netParams{Params: &chaincfg.RegressionNetParams, p2pPort: "18444"}
	simNetParams  = netParams{Params: &chaincfg.SimNetParams, p2pPort: "18555"}
)

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(lighthoudHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems
// for logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and
// set the levels accordingly. An appropriate error is returned if
// anything is invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
		}
		setLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid "+
				"subsystem/level pair [%v]", logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- "+
				"supported subsystems %v", subsysID, supportedSubsystems())
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid", logLevel)
		}
		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load the config file, overwriting defaults with any specified options
//  4. Parse CLI options again so they take precedence over the file
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile:                  defaultConfigFile,
		DataDir:                     defaultDataDir,
		LogDir:                      defaultLogDir,
		DebugLevel:                  defaultLogLevel,
		Mode:                        defaultMode,
		MinPeersForUTXOQuery:        defaultMinPeersForUTXOQuery,
		MaxJitterSeconds:            defaultMaxJitterSeconds,
		UTXOQueryDeadline:           defaultUTXOQueryDeadline,
		DependencyBroadcastDeadline: defaultDependencyDeadline,
		HTTPTimeout:                 defaultHTTPTimeout,
		RelayFeePerKB:               cfgutil.NewAmountFlag(txrules.DefaultRelayFeePerKb),
	}

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	numNets := 0
	if cfg.TestNet {
		activeNet = &testNetParams
		numNets++
	}
	if cfg.RegTest {
		activeNet = &regTestParams
		numNets++
	}
	if cfg.SimNet {
		activeNet = &simNetParams
		numNets++
	}
	if numNets > 1 {
		err := fmt.Errorf("the testnet, regtest, and simnet params can't be " +
			"used together -- choose one")
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Regtest carries its own defaults for peer count and jitter, per
	// the original constructor's RegTestParams special case.
	if activeNet == &regTestParams {
		if cfg.MinPeersForUTXOQuery == defaultMinPeersForUTXOQuery {
			cfg.MinPeersForUTXOQuery = regtestMinPeersForUTXOQuery
		}
		if cfg.MaxJitterSeconds == defaultMaxJitterSeconds {
			cfg.MaxJitterSeconds = regtestMaxJitterSeconds
		}
	}

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNet.Params.Name)
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)

	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	setLogLevels(defaultLogLevel)

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("loadConfig: %v", err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	if cfg.Mode != "client" && cfg.Mode != "server" {
		err := fmt.Errorf("unknown mode %q: must be client or server", cfg.Mode)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.RPCConnect != "" {
		cfg.RPCConnect, err = cfgutil.NormalizeAddress(cfg.RPCConnect, activeNet.p2pPort)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid rpcconnect network address: %v\n", err)
			return nil, nil, err
		}
	}

	cfg.ConnectPeers, err = cfgutil.NormalizeAddresses(cfg.ConnectPeers, activeNet.p2pPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid peer network address: %v\n", err)
		return nil, nil, err
	}

	if err := checkCreateDir(cfg.DataDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}

// checkCreateDir checks that the path exists and is a directory, creating
// it if it does not already exist.
func checkCreateDir(path string) error {
	if fi, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if err = os.MkdirAll(path, 0700); err != nil {
				return fmt.Errorf("cannot create directory: %s", err)
			}
		} else {
			return fmt.Errorf("error checking directory: %s", err)
		}
	} else if !fi.IsDir() {
		return fmt.Errorf("path '%s' is not a directory", path)
	}
	return nil
}
