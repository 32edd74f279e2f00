package construct

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/sourceplane/svcstack/internal/model"
)

// ImageSource decides which image the service starts with. Later images
// arrive through the pipeline's deploy stage.
type ImageSource interface {
	ImageURI() interface{}
	String() string
}

type repositoryImage struct {
	repo *RepositoryRef
	tag  string
}

// FromRepository runs a tag from the stack's own repository. The tag must
// already exist there: a freshly created repository is empty.
func FromRepository(repo *RepositoryRef, tag string) ImageSource {
	return repositoryImage{repo: repo, tag: tag}
}

func (i repositoryImage) ImageURI() interface{} {
	return model.Join("", i.repo.URI(), ":"+i.tag)
}

func (i repositoryImage) String() string {
	return fmt.Sprintf("%s:%s", i.repo.Name, i.tag)
}

type registryImage struct {
	ref name.Reference
}

// FromImage runs an image from any registry, for example a bootstrap image
// used until the pipeline has pushed the first build
func FromImage(reference string) (ImageSource, error) {
	ref, err := name.ParseReference(reference)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidImage, reference, err)
	}
	return registryImage{ref: ref}, nil
}

func (i registryImage) ImageURI() interface{} {
	return i.ref.Name()
}

func (i registryImage) String() string {
	return i.ref.Name()
}

// NewImageSource selects the image source from configuration. Local build
// contexts cannot be published into a caller-owned repository from a
// synthesized template, so the asset kind is rejected.
func NewImageSource(settings model.ImageSettings, repo *RepositoryRef) (ImageSource, error) {
	switch settings.Source {
	case model.ImageSourceRepository:
		if repo == nil {
			return nil, fmt.Errorf("%w: repository image source needs a repository", ErrMissingConfig)
		}
		if settings.Tag == "" {
			return nil, fmt.Errorf("%w: repository image source needs a tag that was already pushed", ErrMissingConfig)
		}
		return FromRepository(repo, settings.Tag), nil
	case model.ImageSourceImage:
		if settings.Reference == "" {
			return nil, fmt.Errorf("%w: image source needs a reference", ErrMissingConfig)
		}
		return FromImage(settings.Reference)
	case model.ImageSourceAsset:
		return nil, fmt.Errorf("%w: building %q at synthesis time is not supported, let the pipeline build and push it", ErrUnsupportedImageSource, settings.Directory)
	default:
		return nil, fmt.Errorf("%w: unknown image source %q", ErrInvalidProps, settings.Source)
	}
}
