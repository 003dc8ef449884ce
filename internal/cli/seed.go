package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"festival-mileage/internal/domain"
	"festival-mileage/internal/infra/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NewSeedBoothsCmd copies the Postgres booth catalog into the document store.
func NewSeedBoothsCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-booths",
		Short: "Import the booth catalog into the document store",
		Long: "Optionally upserts booths from a YAML file into the Postgres catalog, " +
			"then imports the whole catalog into the document store. Visit counts are preserved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedBooths(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file of booths to upsert into the catalog first")
	return cmd
}

func runSeedBooths(ctx context.Context, configPath, file string) error {
	rt, err := loadRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.pool == nil {
		return errors.New("seed-booths needs postgres.url")
	}
	logger := rt.log.Logger
	catalog := postgres.NewBoothCatalog(rt.pool)

	if file != "" {
		booths, err := readBoothFile(file)
		if err != nil {
			return err
		}
		for _, b := range booths {
			if err := catalog.UpsertBooth(ctx, b); err != nil {
				return err
			}
		}
		logger.Info("catalog updated", zap.String("file", file), zap.Int("booths", len(booths)))
	}

	booths, err := catalog.LoadBooths(ctx)
	if err != nil {
		return err
	}
	n, err := rt.services.Booths.Import(ctx, booths)
	if err != nil {
		return err
	}
	logger.Info("booths imported", zap.Int("count", n))
	return nil
}

type boothFile struct {
	Booths []struct {
		DocID       string `yaml:"docId"`
		Index       int    `yaml:"boothIdx"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Floor       string `yaml:"floor"`
		Location    string `yaml:"location"`
		Category    string `yaml:"category"`
		ImageURL    string `yaml:"imageUrl"`
		Quiz        *struct {
			Question      string   `yaml:"question"`
			Options       []string `yaml:"options"`
			CorrectAnswer int      `yaml:"correctAnswer"`
		} `yaml:"quiz"`
	} `yaml:"booths"`
}

func readBoothFile(path string) ([]domain.Booth, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f boothFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	booths := make([]domain.Booth, 0, len(f.Booths))
	for _, b := range f.Booths {
		if b.DocID == "" {
			return nil, fmt.Errorf("booth %d in %s has no docId", b.Index, path)
		}
		booth := domain.Booth{
			DocID:       b.DocID,
			Index:       b.Index,
			Name:        b.Name,
			Description: b.Description,
			Floor:       b.Floor,
			Location:    b.Location,
			Category:    b.Category,
			ImageURL:    b.ImageURL,
		}
		if b.Quiz != nil {
			booth.Quiz = &domain.Quiz{Question: b.Quiz.Question, Options: b.Quiz.Options, CorrectAnswer: b.Quiz.CorrectAnswer}
		}
		booths = append(booths, booth)
	}
	return booths, nil
}
