package config

import (
	"os"
	"path/filepath"
	"strings"
)

type Detection struct {
	HasDockerfile bool
	HasNotebooks  bool
	BaseImage     string
	Workspace     string
	Requirements  string // dependency file to install into the image, if any
}

// Detect inspects the project directory and suggests how to build the notebook image.
func Detect(projectDir string) Detection {
	det := Detection{
		BaseImage: "tensorflow/tensorflow:latest-jupyter",
		Workspace: "/tf/notebooks",
	}

	if info, err := os.Stat(filepath.Join(projectDir, "Dockerfile")); err == nil && !info.IsDir() {
		det.HasDockerfile = true
	}
	if info, err := os.Stat(filepath.Join(projectDir, "notebooks")); err == nil && info.IsDir() {
		det.HasNotebooks = true
	}

	checks := []struct {
		file      string
		marker    string
		baseImage string
		workspace string
	}{
		{"requirements.txt", "torch", "quay.io/jupyter/pytorch-notebook:latest", "/home/jovyan/work"},
		{"requirements.txt", "", "", ""},
		{"environment.yml", "", "quay.io/jupyter/scipy-notebook:latest", "/home/jovyan/work"},
	}

	for _, c := range checks {
		data, err := os.ReadFile(filepath.Join(projectDir, c.file))
		if err != nil {
			continue
		}
		if c.marker != "" && !strings.Contains(string(data), c.marker) {
			continue
		}
		det.Requirements = c.file
		if c.baseImage != "" {
			det.BaseImage = c.baseImage
			det.Workspace = c.workspace
		}
		break
	}

	return det
}
