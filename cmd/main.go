package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgPkg "github.com/xhad/pgai-rag/pkg/config"
	"github.com/xhad/pgai-rag/pkg/logging"
)

var (
	cfgFile string
	cfg     *cfgPkg.Config
	logger  *zap.Logger
)

// Flag values only override the config when the flag was set.
var flags struct {
	dbURL          string
	ollamaHost     string
	model          string
	embeddingModel string
	query          string
	limit          int
	logLevel       string
}

var rootCmd = &cobra.Command{
	Use:   "pgai-rag",
	Short: "Retrieval-augmented generation inside PostgreSQL",
	Long: `pgai-rag stores documents in PostgreSQL, embeds them with the ai extension,
retrieves the closest ones to a question and asks a language model to answer it.`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runText,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.config/pgai-rag/config.yaml)")
	pf.StringVar(&flags.dbURL, "db-url", "", "PostgreSQL connection string")
	pf.StringVar(&flags.ollamaHost, "ollama-host", "", "Ollama URL as seen by the database")
	pf.StringVar(&flags.model, "model", "", "generation model")
	pf.StringVar(&flags.embeddingModel, "embedding-model", "", "embedding model")
	pf.StringVarP(&flags.query, "query", "q", "", "question to answer")
	pf.IntVar(&flags.limit, "limit", 0, "number of documents to retrieve")
	pf.StringVarP(&flags.logLevel, "log-level", "L", "", "log level (debug, info, warn, error, none)")

	rootCmd.AddCommand(textCmd, imagesCmd, webCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = cfgPkg.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	changed := cmd.Flags().Changed
	if changed("db-url") {
		cfg.Database.URL = flags.dbURL
	}
	if changed("ollama-host") {
		cfg.LLM.Host = flags.ollamaHost
	}
	if changed("model") {
		cfg.LLM.Model = flags.model
	}
	if changed("embedding-model") {
		cfg.LLM.EmbeddingModel = flags.embeddingModel
	}
	if changed("query") {
		cfg.Retrieval.Query = flags.query
	}
	if changed("limit") {
		cfg.Retrieval.Limit = flags.limit
	}
	if changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	base, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	logger = base.With(zap.String("run_id", uuid.NewString()), zap.String("command", cmd.Name()))
	return nil
}

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		if err != nil {
			logger.Error("Run failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	if err != nil {
		if errors.Is(err, errInterrupted) {
			color.Yellow("Interrupted")
		} else {
			color.Red("Error: %v", err)
		}
		os.Exit(1)
	}
}
