// Package commands implements the axon CLI.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/axonmem/axon"
	appconfig "github.com/axonmem/axon/pkg/config"
	"github.com/axonmem/axon/pkg/driver"
	"github.com/axonmem/axon/pkg/logger"
	"github.com/axonmem/axon/pkg/plasticity"
	"github.com/axonmem/axon/pkg/similarity"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "axon",
		Short: "Axon: memory graph with brain-inspired dynamics",
		Long: `Axon stores agent memories in a graph whose connections strengthen with
use, decay over time and disappear when pruned. Compartments control which
data may flow between groups of memories.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.axon.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db", "", "database path or URI")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("database.uri", rootCmd.PersistentFlags().Lookup("db"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".axon")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds a client from the effective configuration.
func newClient(ctx context.Context) (*axon.Client, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)

	var store driver.GraphStore
	switch cfg.Database.Driver {
	case "neo4j":
		store, err = driver.NewNeo4jStore(ctx, &driver.Neo4jConfig{
			URI:      cfg.Database.URI,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
		}, log)
	default:
		ladybugCfg := driver.DefaultLadybugConfig()
		ladybugCfg.DBPath = cfg.Database.URI
		store, err = driver.NewLadybugStore(ladybugCfg, log)
	}
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}

	plasticityCfg, err := plasticity.PresetConfig(cfg.Plasticity.Preset)
	if err != nil {
		store.Close()
		return nil, err
	}
	if cfg.Plasticity.ConfigPath != "" {
		plasticityCfg, err = plasticity.LoadConfig(cfg.Plasticity.ConfigPath)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	var scorer similarity.Scorer
	if cfg.Similarity.Enabled {
		scorer, err = similarity.NewEmbeddingScorer(cfg.Similarity.Model)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load similarity model: %w", err)
		}
	}

	return axon.NewClient(store, scorer, &axon.Config{
		Plasticity:    plasticityCfg,
		CheckpointDir: cfg.Maintenance.CheckpointDir,
	}, log)
}
