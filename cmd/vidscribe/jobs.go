package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mqzhao/vidscribe/internal/config"
	"github.com/mqzhao/vidscribe/internal/db"
	"github.com/mqzhao/vidscribe/internal/models"
)

func newJobsCmd() *cobra.Command {
	var configPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent ingestion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd, configPath, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to vidscribe config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show")
	return cmd
}

func runJobs(cmd *cobra.Command, configPath string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}

	var jobs []models.Job
	if err := gormDB.Order("created_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs yet.")
		return nil
	}
	for _, j := range jobs {
		line := fmt.Sprintf("%s  %-12s  %s  user=%s  video=%s",
			j.CreatedAt.Format("2006-01-02 15:04:05"), j.Status, j.ID[:8], j.UserID, j.VideoID)
		if j.Error != "" {
			line += "  error=" + j.Error
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
