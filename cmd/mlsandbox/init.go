package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zpdzap/mlsandbox/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize mlsandbox in the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir := projectDirFlag
		if projectDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			projectDir = wd
		}

		if config.Exists(projectDir) {
			fmt.Println("mlsandbox already initialized in this project.")
			return nil
		}

		detection := config.Detect(projectDir)
		projectName := filepath.Base(projectDir)

		cfg := config.Default()
		cfg.Project = projectName
		cfg.Container.Workspace = detection.Workspace

		if err := config.Save(projectDir, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		if !detection.HasDockerfile {
			if err := writeDockerfile(projectDir, cfg, detection); err != nil {
				return fmt.Errorf("writing Dockerfile: %w", err)
			}
		}

		if err := os.MkdirAll(filepath.Join(projectDir, cfg.Container.Notebooks), 0o755); err != nil {
			return fmt.Errorf("creating notebooks dir: %w", err)
		}

		if err := updateGitignore(projectDir); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}

		fmt.Printf("Initialized mlsandbox for %s\n", projectName)
		fmt.Printf("  Config: %s/%s\n", config.Dir, config.ConfigFile)
		if detection.HasDockerfile {
			fmt.Println("  Dockerfile: existing one kept")
		} else {
			fmt.Printf("  Dockerfile: generated from %s\n", detection.BaseImage)
		}
		fmt.Printf("  Notebooks: %s/ -> %s\n", cfg.Container.Notebooks, cfg.Container.Workspace)
		fmt.Println("\nRun `mlsandbox` to open the control panel.")
		return nil
	},
}

func writeDockerfile(projectDir string, cfg *config.Config, det config.Detection) error {
	var install string
	switch det.Requirements {
	case "requirements.txt":
		install = "COPY requirements.txt /tmp/requirements.txt\nRUN pip install --no-cache-dir -r /tmp/requirements.txt\n\n"
	case "environment.yml":
		install = "COPY environment.yml /tmp/environment.yml\nRUN mamba env update -n base -f /tmp/environment.yml && mamba clean -afy\n\n"
	}

	content := fmt.Sprintf(`FROM %s

%sWORKDIR %s
EXPOSE %d

CMD ["jupyter", "lab", "--ip=0.0.0.0", "--port=%d", "--no-browser", "--allow-root", "--ServerApp.token="]
`, det.BaseImage, install, cfg.Container.Workspace, cfg.Container.Port, cfg.Container.Port)

	path := filepath.Join(projectDir, cfg.Container.Dockerfile)
	return os.WriteFile(path, []byte(content), 0o644)
}

func updateGitignore(projectDir string) error {
	gitignorePath := filepath.Join(projectDir, ".gitignore")

	entries := []string{
		config.Dir + "/*.log",
		config.EnvFile,
		".ipynb_checkpoints/",
	}

	existing, _ := os.ReadFile(gitignorePath)
	content := string(existing)

	var toAdd []string
	for _, entry := range entries {
		if !strings.Contains(content, entry) {
			toAdd = append(toAdd, entry)
		}
	}

	if len(toAdd) == 0 {
		return nil
	}

	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	content += "\n# mlsandbox\n"
	for _, entry := range toAdd {
		content += entry + "\n"
	}

	return os.WriteFile(gitignorePath, []byte(content), 0o644)
}
