package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/config"
	"github.com/scalarorg/ismp-relayer/internal/api"
	"github.com/scalarorg/ismp-relayer/pkg/clients"
	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath  string
	envPath     string
	requestPath string
	rootCmd     = &cobra.Command{
		Use:   "relayer",
		Short: "ISMP request lifecycle relayer",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv(envPath)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	config.InitLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// connectClients dials hyperbridge and every configured spoke chain.
func connectClients(ctx context.Context, cfg *config.Config) (common.ChainClient, []common.ChainClient, error) {
	hyperbridge, err := clients.NewChainClient(ctx, &cfg.Hyperbridge)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create hyperbridge client: %w", err)
	}
	spokes, err := clients.NewChainClients(ctx, cfg.Chains)
	if err != nil {
		return nil, nil, err
	}
	return hyperbridge, spokes, nil
}

func readRequest(path string) (*api.TrackRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	var req api.TrackRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request file: %w", err)
	}
	if err := req.Request.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func printJSON(value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode output")
		return
	}
	fmt.Fprintln(os.Stdout, string(data))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "Path to the dotenv file")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	rootCmd.AddCommand(serveCmd, statusCmd, trackCmd)
}
