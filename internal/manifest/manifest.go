// Package manifest reads and checks the image definitions document the build
// stage hands to the deploy stage.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/google/go-containerregistry/pkg/name"
)

// ImageDefinition points one container at one image
type ImageDefinition struct {
	Name     string `json:"name"`
	ImageURI string `json:"imageUri"`
}

// ImageDefinitions is the imagedefinitions.json document
type ImageDefinitions []ImageDefinition

var commitTag = regexp.MustCompile(`^[0-9a-f]{7}$`)

// New builds the document for a single container
func New(container, repositoryURI, tag string) ImageDefinitions {
	return ImageDefinitions{{Name: container, ImageURI: repositoryURI + ":" + tag}}
}

// Decode parses an image definitions document
func Decode(r io.Reader) (ImageDefinitions, error) {
	var defs ImageDefinitions
	if err := json.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("failed to parse image definitions: %w", err)
	}
	return defs, nil
}

// ReadFile reads an image definitions document from disk
func ReadFile(path string) (ImageDefinitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image definitions %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f)
}

// Encode writes the document in the compact form CodePipeline expects
func (d ImageDefinitions) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(d)
}

// Validate checks there is exactly one record per declared container and
// every image URI carries a resolvable tag: "latest" or a 7-character commit
// hash
func (d ImageDefinitions) Validate(containers ...string) error {
	if len(d) != len(containers) {
		return fmt.Errorf("expected %d image definitions, got %d", len(containers), len(d))
	}

	seen := make(map[string]bool, len(d))
	for _, def := range d {
		if def.Name == "" {
			return fmt.Errorf("image definition has no container name")
		}
		if seen[def.Name] {
			return fmt.Errorf("duplicate image definition for container %s", def.Name)
		}
		seen[def.Name] = true

		if _, err := Tag(def.ImageURI); err != nil {
			return fmt.Errorf("container %s: %w", def.Name, err)
		}
	}

	for _, c := range containers {
		if !seen[c] {
			return fmt.Errorf("no image definition for container %s", c)
		}
	}

	return nil
}

// Tag returns the tag of an image URI, failing when the tag is missing or
// not one the pipeline produces
func Tag(imageURI string) (string, error) {
	tag, err := name.NewTag(imageURI, name.StrictValidation)
	if err != nil {
		return "", fmt.Errorf("invalid image URI %q: %w", imageURI, err)
	}

	t := tag.TagStr()
	if t != "latest" && !commitTag.MatchString(t) {
		return "", fmt.Errorf("image URI %q has tag %q, want latest or a 7-character commit hash", imageURI, t)
	}
	return t, nil
}
