package provisioner

import (
	"context"
	"fmt"

	"github.com/distribution/reference"
)

// Provisioner ensures a build image is available to the container runtime.
type Provisioner interface {
	Ensure(ctx context.Context, image BuildImage) error
}

// BuildImage is an immutable image reference.
type BuildImage struct {
	Name   string
	Tag    string
	Digest string
}

// ParseImage normalizes ref. A reference without tag or digest gets "latest".
func ParseImage(ref string) (BuildImage, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return BuildImage{}, fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	named = reference.TagNameOnly(named)

	img := BuildImage{Name: reference.FamiliarName(named)}
	if tagged, ok := named.(reference.Tagged); ok {
		img.Tag = tagged.Tag()
	}
	if digested, ok := named.(reference.Digested); ok {
		img.Digest = digested.Digest().String()
	}
	return img, nil
}

// String returns the reference in the form the runtime accepts.
func (i BuildImage) String() string {
	s := i.Name
	if i.Tag != "" {
		s += ":" + i.Tag
	}
	if i.Digest != "" {
		s += "@" + i.Digest
	}
	return s
}
