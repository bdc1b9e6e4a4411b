package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/owlfacerec/owlface/config"
	"github.com/owlfacerec/owlface/internal"
	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/store/postgres"
)

var (
	log *logrus.Logger

	cfgFile     string
	showVersion bool
	dumpConfig  bool
	fixturePath string
)

var cmd = &cobra.Command{
	Use:   "owlface",
	Short: "owlface registers face embeddings and finds the closest known faces to a probe image",
	Run:   func(cmd *cobra.Command, args []string) { run() },
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test utilities",
}

var createFixturesCmd = &cobra.Command{
	Use:   "create-fixtures",
	Short: "Create target fixtures with random embeddings",
	RunE: func(cmd *cobra.Command, args []string) error {
		fixtureCount, _ := cmd.Flags().GetInt("count")
		dimensions, _ := cmd.Flags().GetInt("dimensions")
		outputDir, _ := cmd.Flags().GetString("outputDir")
		if dimensions <= 0 {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("error configuring owlface: %w", err)
			}
			dimensions = cfg.Embedding.Dimensions
		}
		if err := postgres.GenerateFixtureData(fixtureCount, dimensions, outputDir); err != nil {
			return err
		}
		fmt.Println("Fixtures created successfully.")
		return nil
	},
}

var loadFixturesCmd = &cobra.Command{
	Use:   "load-fixtures",
	Short: "Recreate the targets table and load fixtures into it",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Error configuring owlface: %s", err)
		}
		config.SetLogLevel(cfg)
		appState := &models.AppState{
			Config: cfg,
		}
		db, err := postgres.NewPostgresConn(appState)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v\n", err)
		}
		defer db.Close()
		err = postgres.LoadFixtures(context.Background(), appState, db, fixturePath)
		if err != nil {
			log.Fatalf("Failed to load fixtures: %v\n", err)
		}
		fmt.Println("Fixtures loaded successfully.")
	},
}

var dumpJsonSchemaCmd = &cobra.Command{
	Use:     "json-schema",
	Short:   "Generates JSON Schema for owlface's configuration file",
	Example: "owlface json-schema > owlface_config_schema.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := config.JSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(schema))
		return nil
	},
}

func init() {
	testCmd.AddCommand(createFixturesCmd)
	testCmd.AddCommand(loadFixturesCmd)
	cmd.AddCommand(testCmd)
	cmd.AddCommand(dumpJsonSchemaCmd)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default config.yaml)")
	cmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "print version number")
	cmd.PersistentFlags().BoolVarP(&dumpConfig, "dump-config", "d", false, "dump config")

	createFixturesCmd.Flags().Int("count", 1000, "Number of targets to generate")
	createFixturesCmd.Flags().
		Int("dimensions", 0, "Embedding dimensions (default embedding.dimensions from config)")
	createFixturesCmd.Flags().String("outputDir", "./test_data", "Path to output fixtures")
	loadFixturesCmd.Flags().
		StringVarP(&fixturePath, "fixturePath", "f", "./test_data", "Path containing fixtures to load")
}

// Execute executes the root cobra command.
func Execute() {
	log = internal.GetLogger()
	log.SetLevel(logrus.InfoLevel)

	err := cmd.Execute()

	if err != nil {
		os.Exit(1)
	}
}
