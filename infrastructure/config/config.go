package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/prism-dag/prismd/domain/consensus"
	"github.com/prism-dag/prismd/infrastructure/db/database"
	"github.com/prism-dag/prismd/infrastructure/db/database/badgerdb"
	"github.com/prism-dag/prismd/infrastructure/db/database/ldb"
	"github.com/prism-dag/prismd/infrastructure/logger"
)

const (
	defaultConfigFilename = "prismd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "prismd.log"
	defaultErrLogFilename = "prismd_err.log"
	defaultDbType         = dbTypeLevelDB
	defaultDatabaseDir    = "db"

	dbTypeLevelDB = "ldb"
	dbTypeBadger  = "badger"

	levelDBCacheSizeMiB = 256
)

var (
	// DefaultHomeDir is the default home directory for prismd.
	DefaultHomeDir = btcutil.AppDataDir("prismd", false)

	defaultConfigFile = filepath.Join(DefaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(DefaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(DefaultHomeDir, defaultLogDirname)
	knownDbTypes      = []string{dbTypeLevelDB, dbTypeBadger}
)

// Flags defines the configuration options for prismd.
//
// See LoadConfig for details on the configuration load process.
type Flags struct {
	ConfigFile        string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir           string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir            string        `long:"logdir" description:"Directory to log output."`
	LogLevel          string        `short:"d" long:"loglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical, off} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	DbType            string        `long:"dbtype" description:"Database backend to use for the UTXO set {ldb, badger}"`
	VoterChains       uint16        `long:"voterchains" description:"Override the number of voter chains of the network (not allowed on mainnet)"`
	ConfirmationDepth uint64        `long:"confirmationdepth" description:"Override the confirmation depth of the network (not allowed on mainnet)"`
	OrphanBuffer      int           `long:"orphanbuffer" description:"Max number of orphan blocks to keep in memory"`
	OrphanExpiration  time.Duration `long:"orphanexpiration" description:"How long an orphan block waits for its dependencies. Valid time units are {s, m, h}"`
	UTXOCacheSize     int           `long:"utxocachesize" description:"Number of UTXO entries to cache in memory"`
	LedgerQueue       int           `long:"ledgerqueue" description:"Capacity of the ledger worker's queue"`
	SkipPoW           bool          `long:"skippow" description:"Do not check the proof of work of blocks (not allowed on mainnet)"`
	NetworkFlags
}

// Config defines the configuration options for prismd.
type Config struct {
	*Flags
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

func validDbType(dbType string) bool {
	for _, knownType := range knownDbTypes {
		if dbType == knownType {
			return true
		}
	}
	return false
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:       defaultConfigFile,
		DataDir:          defaultDataDir,
		LogDir:           defaultLogDir,
		LogLevel:         defaultLogLevel,
		DbType:           defaultDbType,
		OrphanBuffer:     consensus.DefaultOrphanBufferSize,
		OrphanExpiration: consensus.DefaultOrphanExpiration,
		UTXOCacheSize:    consensus.DefaultUTXOCacheSize,
		LedgerQueue:      consensus.DefaultLedgerQueueSize,
	}
}

// LoadConfig initializes and parses the config using a config file and the
// given command line arguments.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// Command line options always take precedence. A missing config file is an
// error only when it was given explicitly.
func LoadConfig(args []string) (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file was specified. Errors aside from the help message are caught
	// by the final parse below.
	preCfg := *cfgFlags
	_, err := flags.NewParser(&preCfg, flags.HelpFlag).ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, err
		}
	}

	parser := flags.NewParser(cfgFlags, flags.HelpFlag)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile != defaultConfigFile {
			return nil, errors.Wrapf(err, "error parsing config file %s", preCfg.ConfigFile)
		}
	}

	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(remainingArgs) > 0 {
		return nil, errors.Errorf("unexpected arguments: %s", strings.Join(remainingArgs, " "))
	}

	cfg := &Config{Flags: cfgFlags}
	err = cfg.validate()
	if err != nil {
		return nil, err
	}

	// Namespace the data and log directories per network
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir), cfg.NetParams().Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), cfg.NetParams().Name)

	err = logger.ParseAndSetLogLevels(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	err := cfg.ResolveNetwork()
	if err != nil {
		return err
	}

	if !validDbType(cfg.DbType) {
		return errors.Errorf("the specified database type [%s] is invalid -- supported types %s",
			cfg.DbType, strings.Join(knownDbTypes, ", "))
	}

	if cfg.isMainnet() {
		switch {
		case cfg.VoterChains != 0:
			return errors.Errorf("voterchains is not allowed on mainnet")
		case cfg.ConfirmationDepth != 0:
			return errors.Errorf("confirmationdepth is not allowed on mainnet")
		case cfg.SkipPoW:
			return errors.Errorf("skippow is not allowed on mainnet")
		}
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"orphanbuffer", int64(cfg.OrphanBuffer)},
		{"orphanexpiration", int64(cfg.OrphanExpiration)},
		{"utxocachesize", int64(cfg.UTXOCacheSize)},
		{"ledgerqueue", int64(cfg.LedgerQueue)},
	}
	for _, option := range positive {
		if option.value <= 0 {
			return errors.Errorf("%s must be positive, got %d", option.name, option.value)
		}
	}
	return nil
}

// ConsensusConfig returns the consensus configuration of the selected
// network, with the overrides of cfg applied
func (cfg *Config) ConsensusConfig() *consensus.Config {
	consensusConfig := consensus.NewConfig(cfg.NetParams())
	if cfg.VoterChains != 0 {
		consensusConfig.NumVoterChains = cfg.VoterChains
	}
	if cfg.ConfirmationDepth != 0 {
		consensusConfig.ConfirmationDepth = cfg.ConfirmationDepth
	}
	if cfg.SkipPoW {
		consensusConfig.SkipProofOfWork = true
	}
	consensusConfig.OrphanBufferSize = cfg.OrphanBuffer
	consensusConfig.OrphanExpiration = cfg.OrphanExpiration
	consensusConfig.UTXOCacheSize = cfg.UTXOCacheSize
	consensusConfig.LedgerQueueSize = cfg.LedgerQueue
	return consensusConfig
}

// DatabasePath returns the directory of the selected database
func (cfg *Config) DatabasePath() string {
	return filepath.Join(cfg.DataDir, defaultDatabaseDir+"-"+cfg.DbType)
}

// OpenDatabase opens the database selected by dbtype under the data directory
func (cfg *Config) OpenDatabase() (database.Database, error) {
	path := cfg.DatabasePath()
	switch cfg.DbType {
	case dbTypeLevelDB:
		return ldb.NewLevelDB(path, levelDBCacheSizeMiB)
	case dbTypeBadger:
		return badgerdb.NewBadgerDB(path)
	}
	return nil, errors.Errorf("unknown database type %s", cfg.DbType)
}

// InitLog attaches the log files under the log directory to the logging
// backend
func (cfg *Config) InitLog() error {
	err := os.MkdirAll(cfg.LogDir, 0700)
	if err != nil {
		return errors.WithStack(err)
	}
	return logger.InitLog(filepath.Join(cfg.LogDir, defaultLogFilename),
		filepath.Join(cfg.LogDir, defaultErrLogFilename))
}

func (cfg *Config) String() string {
	return fmt.Sprintf("network %s, database %s at %s", cfg.NetParams().Name, cfg.DbType, cfg.DatabasePath())
}
